package terraform

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainTF = `resource "aws_instance" "web" {
  ami           = "ami-123456"
  instance_type = "t3.large"
  monitoring    = false

  tags = {
    Owner = "ops"
    Name  = "web"
  }
}

resource "aws_security_group" "web" {
  name        = "web-sg"
  description = "edited description"
}
`

func rewriteFixture(t *testing.T) (string, string) {
	t.Helper()
	workDir := t.TempDir()
	path := filepath.Join(workDir, "main.tf")
	require.NoError(t, os.WriteFile(path, []byte(mainTF), 0644))
	return workDir, path
}

func TestRewriteTopLevelAttribute(t *testing.T) {
	workDir, path := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	result, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "aws_instance.web",
		PropertyPath: "instance_type",
		OldValue:     "t3.large",
		NewValue:     "t3.micro",
	})
	require.NoError(t, err)
	assert.Equal(t, path, result.File)
	assert.Equal(t, 3, result.Line)
	assert.Contains(t, result.OldLine, "t3.large")
	assert.Contains(t, result.NewLine, `"t3.micro"`)
	assert.Contains(t, result.Summary, "main.tf:3")

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), `instance_type = "t3.micro"`)
	assert.NotContains(t, string(updated), "t3.large")
	// The untouched resource is intact.
	assert.Contains(t, string(updated), `description = "edited description"`)
}

func TestRewriteNestedMapKey(t *testing.T) {
	workDir, path := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	result, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "aws_instance.web",
		PropertyPath: "tags.Owner",
		OldValue:     "ops",
		NewValue:     "platform",
	})
	require.NoError(t, err)
	assert.Contains(t, result.NewLine, `"platform"`)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), `Owner = "platform"`)
	assert.Contains(t, string(updated), `Name  = "web"`, "sibling keys are untouched")
}

func TestRewriteBooleanValue(t *testing.T) {
	workDir, path := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	_, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "aws_instance.web",
		PropertyPath: "monitoring",
		OldValue:     false,
		NewValue:     true,
	})
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), "monitoring    = true")
}

func TestRewriteBareResourceName(t *testing.T) {
	workDir, _ := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	// Without a type prefix the first block whose label matches wins.
	result, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "web",
		PropertyPath: "ami",
		NewValue:     "ami-999999",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Line)
}

func TestRewriteSecondResourceInFile(t *testing.T) {
	workDir, path := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	_, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "aws_security_group.web",
		PropertyPath: "description",
		NewValue:     "managed by terraform",
	})
	require.NoError(t, err)

	updated, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(updated), `description = "managed by terraform"`)
	assert.Contains(t, string(updated), `instance_type = "t3.large"`, "first resource is untouched")
}

func TestRewriteErrors(t *testing.T) {
	workDir, _ := rewriteFixture(t)
	rewriter := NewFileRewriter(workDir)

	tests := []struct {
		name    string
		req     RewriteRequest
		wantErr string
	}{
		{
			name:    "unknown resource",
			req:     RewriteRequest{ResourceName: "aws_instance.ghost", PropertyPath: "ami", NewValue: "x"},
			wantErr: "not declared",
		},
		{
			name:    "unknown property",
			req:     RewriteRequest{ResourceName: "aws_instance.web", PropertyPath: "ebs_optimized", NewValue: true},
			wantErr: "not found in resource",
		},
		{
			name:    "missing resource name",
			req:     RewriteRequest{PropertyPath: "ami", NewValue: "x"},
			wantErr: "resource name is required",
		},
		{
			name:    "composite value",
			req:     RewriteRequest{ResourceName: "aws_instance.web", PropertyPath: "ami", NewValue: []string{"a", "b"}},
			wantErr: "only scalar values",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := rewriter.Rewrite(context.Background(), tt.req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRewriteEmptyWorkDir(t *testing.T) {
	rewriter := NewFileRewriter(t.TempDir())

	_, err := rewriter.Rewrite(context.Background(), RewriteRequest{
		ResourceName: "aws_instance.web",
		PropertyPath: "ami",
		NewValue:     "x",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no .tf files")
}

func TestScalarRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
	}{
		{name: "string", value: "hello world"},
		{name: "string with quotes", value: `say "hi"`},
		{name: "integer", value: float64(42)},
		{name: "float", value: 3.14},
		{name: "negative", value: -7.5},
		{name: "bool true", value: true},
		{name: "bool false", value: false},
		{name: "null", value: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			formatted, err := FormatScalar(tt.value)
			require.NoError(t, err)

			parsed, err := ParseScalar(formatted)
			require.NoError(t, err)
			assert.Equal(t, tt.value, parsed)
		})
	}
}

func TestFormatScalarInt(t *testing.T) {
	formatted, err := FormatScalar(42)
	require.NoError(t, err)
	assert.Equal(t, "42", formatted)

	parsed, err := ParseScalar(formatted)
	require.NoError(t, err)
	assert.Equal(t, float64(42), parsed, "numbers always parse back as float64")
}

func TestParseScalarErrors(t *testing.T) {
	_, err := ParseScalar("[1, 2]")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a scalar")

	_, err = ParseScalar(`{"a"`)
	require.Error(t, err)
}
