package terraform

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/driftguard/driftguard/internal/logger"
)

// RewriteRequest asks for one property value to be replaced in the
// declarative source.
type RewriteRequest struct {
	ResourceName string
	PropertyPath string
	OldValue     interface{}
	NewValue     interface{}
}

// RewriteResult describes the single-line replacement that was made.
type RewriteResult struct {
	File    string `json:"file"`
	Line    int    `json:"line"`
	OldLine string `json:"old_line"`
	NewLine string `json:"new_line"`
	Summary string `json:"summary"`
}

// FileRewriter updates resource attributes in .tf files. The resource
// block and attribute are located structurally via the HCL syntax
// tree, but the replacement itself is textual and assumes one
// assignment line per property. It is not a general HCL writer.
type FileRewriter struct {
	workDir string
	log     logger.Logger
}

// NewFileRewriter creates a rewriter over the working directory tree.
func NewFileRewriter(workDir string) *FileRewriter {
	return &FileRewriter{
		workDir: workDir,
		log:     logger.New("rewriter"),
	}
}

// Rewrite finds the resource block declaring the target resource,
// replaces the property's assignment line with the new value, and
// writes the file back.
func (w *FileRewriter) Rewrite(ctx context.Context, req RewriteRequest) (*RewriteResult, error) {
	if req.ResourceName == "" {
		return nil, fmt.Errorf("resource name is required")
	}
	attr := attributeName(req.PropertyPath)
	if attr == "" {
		return nil, fmt.Errorf("cannot derive attribute from property path %q", req.PropertyPath)
	}

	files, err := w.sourceFiles()
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no .tf files under %s", w.workDir)
	}

	resourceType, resourceLabel := splitResourceAddress(req.ResourceName)

	resourceSeen := false
	for _, path := range files {
		result, found, err := w.rewriteInFile(path, resourceType, resourceLabel, attr, req.NewValue)
		if err != nil {
			return nil, err
		}
		if found {
			resourceSeen = true
		}
		if result != nil {
			w.log.Info("source rewritten",
				logger.String("file", result.File),
				logger.Int("line", result.Line),
				logger.String("property", req.PropertyPath))
			return result, nil
		}
	}

	if resourceSeen {
		return nil, fmt.Errorf("property %q not found in resource %s", req.PropertyPath, req.ResourceName)
	}
	return nil, fmt.Errorf("resource %s not declared in any .tf file under %s", req.ResourceName, w.workDir)
}

// rewriteInFile returns (result, resourceFound, error). A nil result
// with resourceFound true means the block exists but lacks the
// attribute.
func (w *FileRewriter) rewriteInFile(path, resourceType, resourceLabel, attr string, newValue interface{}) (*RewriteResult, bool, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, false, fmt.Errorf("failed to read %s: %w", path, err)
	}

	file, diags := hclsyntax.ParseConfig(src, path, hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		// Unparseable files are skipped, same as a grep miss.
		w.log.Debug("skipping unparseable source file",
			logger.String("file", path),
			logger.String("diagnostics", diags.Error()))
		return nil, false, nil
	}

	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, false, nil
	}

	for _, block := range body.Blocks {
		if block.Type != "resource" || len(block.Labels) != 2 {
			continue
		}
		if resourceType != "" && block.Labels[0] != resourceType {
			continue
		}
		if block.Labels[1] != resourceLabel {
			continue
		}

		line := locateAttributeLine(block, attr, src)
		if line == 0 {
			return nil, true, nil
		}

		result, err := replaceLineValue(path, src, line, newValue)
		if err != nil {
			return nil, true, err
		}
		return result, true, nil
	}
	return nil, false, nil
}

// locateAttributeLine finds the assignment line for the attribute,
// first structurally, then by scanning the block's source lines for
// nested properties (map keys, block-internal assignments).
func locateAttributeLine(block *hclsyntax.Block, attr string, src []byte) int {
	if attribute, ok := block.Body.Attributes[attr]; ok {
		return attribute.SrcRange.Start.Line
	}

	pattern := regexp.MustCompile(`^\s*"?` + regexp.QuoteMeta(attr) + `"?\s*=`)
	blockRange := block.Body.SrcRange
	segment := blockRange.SliceBytes(src)
	for offset, line := range strings.Split(string(segment), "\n") {
		if pattern.MatchString(line) {
			return blockRange.Start.Line + offset
		}
	}
	return 0
}

func replaceLineValue(path string, src []byte, lineNum int, newValue interface{}) (*RewriteResult, error) {
	formatted, err := FormatScalar(newValue)
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(src), "\n")
	if lineNum < 1 || lineNum > len(lines) {
		return nil, fmt.Errorf("line %d out of range in %s", lineNum, path)
	}

	oldLine := lines[lineNum-1]
	eq := strings.Index(oldLine, "=")
	if eq < 0 {
		return nil, fmt.Errorf("no assignment on %s:%d", path, lineNum)
	}

	newLine := oldLine[:eq+1] + " " + formatted
	lines[lineNum-1] = newLine

	mode := fs.FileMode(0644)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), mode); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", path, err)
	}

	return &RewriteResult{
		File:    path,
		Line:    lineNum,
		OldLine: strings.TrimSpace(oldLine),
		NewLine: strings.TrimSpace(newLine),
		Summary: fmt.Sprintf("%s:%d: %s -> %s", filepath.Base(path), lineNum, strings.TrimSpace(oldLine), strings.TrimSpace(newLine)),
	}, nil
}

// sourceFiles lists the .tf files under the working directory in a
// stable order, skipping the .terraform cache.
func (w *FileRewriter) sourceFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(w.workDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			name := d.Name()
			if name == ".terraform" || (strings.HasPrefix(name, ".") && path != w.workDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(path, ".tf") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan %s: %w", w.workDir, err)
	}
	sort.Strings(files)
	return files, nil
}

// attributeName reduces a property path to the attribute assigned in
// source: the last segment with any index stripped.
func attributeName(propertyPath string) string {
	segments := strings.Split(propertyPath, ".")
	last := segments[len(segments)-1]
	if idx := strings.IndexByte(last, '['); idx >= 0 {
		last = last[:idx]
	}
	return last
}

func splitResourceAddress(resourceName string) (resourceType, label string) {
	parts := strings.SplitN(resourceName, ".", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", resourceName
}

// FormatScalar renders a scalar value as HCL source text.
func FormatScalar(value interface{}) (string, error) {
	val, err := scalarToCty(value)
	if err != nil {
		return "", err
	}
	return string(hclwrite.TokensForValue(val).Bytes()), nil
}

// ParseScalar evaluates HCL source text back into a scalar value.
// Numbers always come back as float64.
func ParseScalar(src string) (interface{}, error) {
	expr, diags := hclsyntax.ParseExpression([]byte(src), "value", hcl.Pos{Line: 1, Column: 1})
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse value %q: %s", src, diags.Error())
	}

	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to evaluate value %q: %s", src, diags.Error())
	}

	switch {
	case val.IsNull():
		return nil, nil
	case val.Type() == cty.String:
		return val.AsString(), nil
	case val.Type() == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case val.Type() == cty.Bool:
		return val.True(), nil
	default:
		return nil, fmt.Errorf("value %q is not a scalar", src)
	}
}

func scalarToCty(value interface{}) (cty.Value, error) {
	switch v := value.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), nil
	case string:
		return cty.StringVal(v), nil
	case bool:
		return cty.BoolVal(v), nil
	case int:
		return cty.NumberIntVal(int64(v)), nil
	case int64:
		return cty.NumberIntVal(v), nil
	case float64:
		return cty.NumberFloatVal(v), nil
	case json.Number:
		return cty.ParseNumberVal(string(v))
	default:
		return cty.NilVal, fmt.Errorf("unsupported value type %T: only scalar values can be written", value)
	}
}
