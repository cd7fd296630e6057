package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-leafrender/pkg/model"
	"github.com/goliatone/go-leafrender/pkg/prompt"
)

func execute(t *testing.T, driver prompt.Driver, args ...string) (string, error) {
	t.Helper()
	root := (&app{cfg: viper.New(), driver: driver}).command()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

type nameDriver struct{ answer string }

func (d nameDriver) Input(context.Context, prompt.InputConfig) (string, error) {
	return d.answer, nil
}

func (nameDriver) Confirm(context.Context, prompt.ConfirmConfig) (bool, error) {
	return false, nil
}

func (nameDriver) Select(context.Context, prompt.SelectConfig) (int, error) {
	return 0, nil
}

func TestCheck_Starter(t *testing.T) {
	out, err := execute(t, nil, "check")
	require.NoError(t, err)
	assert.Equal(t, "ok: 3 components, 4 templates\n", out)
}

func TestRender_SampleContext(t *testing.T) {
	out, err := execute(t, nil, "render", "greeting")
	require.NoError(t, err)
	assert.Equal(t, "Hello World!\n", out)
}

func TestRender_InlineAndFileContext(t *testing.T) {
	out, err := execute(t, nil, "render", "greeting", "--context", `{"name":"Go"}`)
	require.NoError(t, err)
	assert.Equal(t, "Hello Go!\n", out)

	path := filepath.Join(t.TempDir(), "ctx.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"condition": false}`), 0o644))
	out, err = execute(t, nil, "render", "flag", "--context", "@"+path)
	require.NoError(t, err)
	assert.Equal(t, "False\n", out)
}

func TestRender_UndefinedVariableFails(t *testing.T) {
	_, err := execute(t, nil, "render", "greeting", "--context", `{}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, &model.Error{Kind: model.KindRenderError})
}

func TestRender_Interactive(t *testing.T) {
	out, err := execute(t, nameDriver{answer: "Ada"}, "render", "greeting", "--context", `{}`, "--interactive")
	require.NoError(t, err)
	assert.Equal(t, "Hello Ada!\n", out)
}

func TestRender_EnvelopeTruncatedToCapacity(t *testing.T) {
	out, err := execute(t, nil, "render", "greeting", "--envelope")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"Success","result":"Hello World!"}`+"\n", out)

	out, err = execute(t, nil, "render", "greeting", "--envelope", "--capacity", "10")
	require.NoError(t, err)
	assert.Equal(t, `{"type":"S`+"\n", out)
}

func TestVars(t *testing.T) {
	out, err := execute(t, nil, "vars", "card_header")
	require.NoError(t, err)
	assert.Equal(t, "user\n", out)

	out, err = execute(t, nil, "vars", "card_header", "--nested")
	require.NoError(t, err)
	assert.Equal(t, "user.name\n", out)

	_, err = execute(t, nil, "vars", "nope")
	require.Error(t, err)
}

const titleComponent = `components:
  title:
    schema:
      type: object
      properties:
        title: {type: string}
`

func TestCheck_BundleDirectory(t *testing.T) {
	dir := t.TempDir()
	manifest := filepath.Join(dir, "site.leaf.yaml")

	broken := titleComponent + `templates:
  - name: broken
    source: "{{ body }}"
    components: [title]
`
	require.NoError(t, os.WriteFile(manifest, []byte(broken), 0o644))
	_, err := execute(t, nil, "check", "--bundle", dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, &model.Error{Kind: model.KindCompileError})
	assert.Contains(t, err.Error(), "body")

	valid := titleComponent + `templates:
  - name: page
    source: "<h1>{{ title }}</h1>"
    components: [title]
`
	require.NoError(t, os.WriteFile(manifest, []byte(valid), 0o644))
	out, err := execute(t, nil, "check", "--bundle", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok: 1 components, 1 templates\n", out)

	out, err = execute(t, nil, "render", "page", "--bundle", dir, "--context", `{"title":"Hi"}`)
	require.NoError(t, err)
	assert.Equal(t, "<h1>Hi</h1>\n", out)
}

func TestCheck_SchemaDialect(t *testing.T) {
	dir := t.TempDir()
	manifest := `components:
  tags:
    schema:
      type: object
      properties:
        tags: {type: array}
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tags.leaf.yaml"), []byte(manifest), 0o644))

	out, err := execute(t, nil, "check", "--bundle", dir)
	require.NoError(t, err)
	assert.Equal(t, "ok: 1 components, 0 templates\n", out)

	_, err = execute(t, nil, "check", "--bundle", dir, "--schema-dialect", "openapi")
	require.Error(t, err)
	assert.ErrorIs(t, err, &model.Error{Kind: model.KindSchemaValidation})

	_, err = execute(t, nil, "check", "--schema-dialect", "xml")
	require.Error(t, err)
}

func TestRoot_Errors(t *testing.T) {
	_, err := execute(t, nil, "check", "--bundle", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)

	_, err = execute(t, nil, "check", "--log-level", "loud")
	require.Error(t, err)

	_, err = execute(t, nil, "watch")
	require.Error(t, err)
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	cfg := filepath.Join(dir, "leaf.yml")
	require.NoError(t, os.WriteFile(cfg, []byte("capacity: 4\n"), 0o644))

	out, err := execute(t, nil, "render", "greeting", "--envelope", "--config", cfg)
	require.NoError(t, err)
	assert.Equal(t, `{"ty`+"\n", out)
}
