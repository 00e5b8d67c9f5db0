package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Avinash-1994/Nexxo-sub001/internal/ctxlog"
	"github.com/Avinash-1994/Nexxo-sub001/internal/devserver"
	"github.com/Avinash-1994/Nexxo-sub001/internal/ignore"
	"github.com/Avinash-1994/Nexxo-sub001/internal/watch"
	"github.com/Avinash-1994/Nexxo-sub001/session"
)

var devListen string

var devCmd = &cobra.Command{
	Use:   "dev",
	Short: "Watch the project and push hot-update decisions to clients",
	Long: `Builds the module graph, watches the project for changes and serves a
WebSocket at /__nexxo/hmr. Every change is classified at once against the last
published graph and broadcast; graph updates follow once a batch settles.`,
	Args: cobra.NoArgs,
	RunE: runDev,
}

func runDev(cmd *cobra.Command, args []string) error {
	p, err := loadProject(cmd)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(p.ctx)
	defer cancel()

	addr := p.cfg.Dev.Listen
	if devListen != "" {
		addr = devListen
	}

	// the server is created after the session, so updates go through this hook
	var srv *devserver.Server
	opts := session.Options{
		OnUpdate: func(u session.Update) {
			if srv != nil {
				srv.BroadcastUpdate(u)
			}
		},
	}
	if p.cfg.Cache.Digests {
		cache, err := p.openDigests()
		if err != nil {
			return err
		}
		defer cache.Close()
		opts.Digests = cache
	}
	sess, err := p.newSession(opts)
	if err != nil {
		return err
	}
	srv = devserver.New(ctx, sess)
	log := ctxlog.FromContext(ctx).With("session", sess.ID())

	matcher, err := ignore.LoadFromDir(p.cfg.Root)
	if err != nil {
		return fmt.Errorf("loading ignore patterns: %w", err)
	}
	matcher.AddDirectory(p.cfg.OutDir)

	w, err := watch.New(p.cfg.Root, matcher)
	if err != nil {
		return err
	}
	defer w.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Run(gctx) })
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx, addr) })
	g.Go(func() error {
		for change := range w.Events() {
			d := sess.Notify(gctx, change)
			log.Info("change", "path", rel(p.cfg.Root, change.Path), "kind", change.Kind, "level", d.Level)
			srv.BroadcastDecision(d)
		}
		return nil
	})

	fmt.Fprintf(cmd.OutOrStdout(), "nexxo dev: %d modules, listening on ws://%s%s\n", sess.Graph().Len(), addr, devserver.HMRPath)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func init() {
	devCmd.Flags().StringVar(&devListen, "listen", "", "Listen address (default: dev.listen from config)")
	devCmd.GroupID = groupDev
	rootCmd.AddCommand(devCmd)
}
