package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/goliatone/go-leafrender/pkg/bundle"
	"github.com/goliatone/go-leafrender/pkg/orchestrator"
	"github.com/goliatone/go-leafrender/pkg/prompt"
	"github.com/goliatone/go-leafrender/pkg/render"
)

type renderFlags struct {
	context     string
	interactive bool
	envelope    bool
}

func newRenderCmd(a *app) *cobra.Command {
	var flags renderFlags
	cmd := &cobra.Command{
		Use:   "render <template>",
		Short: "Render a template with a JSON context or the bundle's sample",
		Long: `Render a compiled template.

The context comes from --context (inline JSON, or @path to read a file) and
falls back to the sample declared in the bundle manifest. With --interactive
any variable still missing is prompted for.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.render(cmd, args[0], flags)
		},
	}
	cmd.Flags().StringVarP(&flags.context, "context", "c", "", "JSON context, or @file")
	cmd.Flags().BoolVarP(&flags.interactive, "interactive", "i", false, "prompt for missing variables")
	cmd.Flags().BoolVar(&flags.envelope, "envelope", false, "print the JSON result envelope as written to a capacity-sized buffer")
	return cmd
}

func (a *app) render(cmd *cobra.Command, name string, flags renderFlags) error {
	ctx := cmd.Context()
	rt, b, err := a.load(ctx)
	if err != nil {
		return err
	}

	data, err := contextFor(b, name, flags.context)
	if err != nil {
		return err
	}
	if flags.interactive {
		if err := a.fill(ctx, rt, name, data); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if flags.envelope {
		raw, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("leafrender: encode context: %w", err)
		}
		buf := make([]byte, a.capacity())
		n := rt.Codec().RenderTemplate([]byte(name), raw, buf)
		fmt.Fprintln(out, string(buf[:n]))
		return nil
	}

	result := rt.Render(name, data)
	if !result.OK() {
		return result.Error
	}
	fmt.Fprint(out, result.Result)
	if !strings.HasSuffix(result.Result, "\n") {
		fmt.Fprintln(out)
	}
	return nil
}

func contextFor(b *bundle.Bundle, name, flag string) (map[string]any, error) {
	flag = strings.TrimSpace(flag)
	if flag == "" {
		return cloneContext(b.Context(name))
	}
	raw := []byte(flag)
	if path, ok := strings.CutPrefix(flag, "@"); ok {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("leafrender: context file: %w", err)
		}
		raw = data
	}
	data, err := render.DecodeContext(raw)
	if err != nil {
		return nil, fmt.Errorf("leafrender: context: %w", err)
	}
	return data, nil
}

// cloneContext deep copies a manifest sample so prompting never mutates the
// bundle.
func cloneContext(sample map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(sample)
	if err != nil {
		return nil, fmt.Errorf("leafrender: sample context: %w", err)
	}
	return render.DecodeContext(raw)
}

func (a *app) fill(ctx context.Context, rt *orchestrator.Orchestrator, name string, data map[string]any) error {
	compiled, ok := rt.Store().Get(name)
	if !ok {
		return fmt.Errorf("leafrender: template %q not found", name)
	}
	paths, err := rt.FreeVariables(name, true)
	if err != nil {
		return err
	}
	schemas := make([]map[string]any, 0, len(compiled.Components))
	for _, component := range compiled.Components {
		if schema, ok := rt.Registry().Lookup(component); ok {
			schemas = append(schemas, schema)
		}
	}
	driver := a.driver
	if driver == nil {
		driver = prompt.NewSurveyDriver()
	}
	return prompt.NewFiller(driver, schemas...).Fill(ctx, paths, data)
}
