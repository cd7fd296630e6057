package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const watchDebounce = 150 * time.Millisecond

func newWatchCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Recheck the bundle whenever a file under it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir := a.cfg.GetString(keyBundle)
			if dir == "" {
				return errors.New("leafrender: watch needs --bundle")
			}
			return a.watch(cmd.Context(), dir, cmd.OutOrStdout())
		},
	}
}

func (a *app) watch(ctx context.Context, dir string, out io.Writer) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("leafrender: watcher: %w", err)
	}
	defer watcher.Close()

	if err := addDirs(watcher, dir); err != nil {
		return err
	}

	a.recheck(ctx, out)

	timer := time.NewTimer(watchDebounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Chmod == event.Op {
				continue
			}
			a.logger.Debug("bundle changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					_ = watcher.Add(event.Name)
				}
			}
			timer.Reset(watchDebounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			a.logger.Warn("watcher error", zap.Error(err))
		case <-timer.C:
			a.recheck(ctx, out)
		}
	}
}

func (a *app) recheck(ctx context.Context, out io.Writer) {
	rt, _, err := a.load(ctx)
	if err != nil {
		fmt.Fprintf(out, "%s error: %v\n", time.Now().Format(time.TimeOnly), err)
		return
	}
	fmt.Fprintf(out, "%s ok: %d components, %d templates\n",
		time.Now().Format(time.TimeOnly), len(rt.Components()), len(rt.Templates()))
}

func addDirs(watcher *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if err := watcher.Add(path); err != nil {
			return fmt.Errorf("leafrender: watch %s: %w", path, err)
		}
		return nil
	})
}
