package main

import (
	"context"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/cloudeditor/internal/agent"
	"github.com/buckleypaul/cloudeditor/internal/app"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/pages"
	"github.com/buckleypaul/cloudeditor/internal/session"
	"github.com/buckleypaul/cloudeditor/internal/status"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
	"github.com/buckleypaul/cloudeditor/internal/window"
)

func monitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "monitor",
		Short:        "Open the serial monitor",
		Long:         "Open the serial monitor. With --parent the monitor runs as the window of an editor started with serve.",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, true)
			if err != nil {
				return err
			}
			defer e.close()
			parentURL, err := cmd.Flags().GetString("parent")
			if err != nil {
				return err
			}
			return runMonitor(cmd.Context(), e, parentURL)
		},
	}
	portFlags(cmd)
	cmd.Flags().String("parent", "", "websocket URL of the editor to attach to, e.g. ws://127.0.0.1:8991/window")
	return cmd
}

func runMonitor(ctx context.Context, e *env, parentURL string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ds := devicestate.NewStore(devicestate.State{}, e.logger)
	ag := agent.New(ds, agent.Options{
		OpenTimeout:  e.cfg.OpenTimeout(),
		CloseTimeout: e.cfg.CloseTimeout(),
		Logger:       e.logger,
	})
	defer ag.Shutdown()

	ref := &programRef{}
	sessions := session.New(ag, e.logger)

	var (
		child    *window.Child
		notifier session.Notifier
	)
	if parentURL != "" {
		t, err := window.Dial(ctx, parentURL, e.cfg.ChildOrigin)
		if err != nil {
			return err
		}
		defer t.Close()
		child = window.NewChild(t, e.cfg.ParentOrigin, window.ChildHandlers{
			Config: func(c window.Config) {
				ref.Send(app.DevicesMsg{Devices: c.Devices})
				ref.Send(app.PortSelectedMsg{Port: c.Port, DeviceName: c.DeviceName})
				ref.Send(app.UploadingMsg{Uploading: c.State.UploadStatus == devicestate.UploadInProgress})
			},
			Devices: func(d []devicestate.Device) {
				ref.Send(app.DevicesMsg{Devices: d})
			},
			Uploading: func(u bool) {
				ref.Send(app.UploadingMsg{Uploading: u})
			},
		}, e.logger)
		notifier = child
	}

	machine := status.NewMachine(session.Effects{Service: sessions, Notifier: notifier})
	machine.OnCommit(func(prev, next status.Snapshot, input status.Input) {
		e.logger.Info("monitor status", "input", string(input), "from", prev.Status.String(), "to", next.Status.String())
	})

	up := uploader.New(ds, uploader.Options{History: e.store, Logger: e.logger})
	monitorPage := pages.NewMonitorPage(pages.MonitorDeps{
		Machine:  machine,
		Sessions: sessions,
		Sender:   ref,
		Store:    e.store,
		Logger:   e.logger,
	}, &e.cfg, e.wsRoot)
	defer monitorPage.Close()

	pageMap := map[app.PageID]app.Page{
		app.MonitorPage:  monitorPage,
		app.UploadPage:   pages.NewUploadPage(ds, up, ref, &e.cfg),
		app.HistoryPage:  pages.NewHistoryPage(e.store),
		app.SettingsPage: pages.NewSettingsPage(&e.cfg, e.wsRoot),
	}
	model := app.New(pageMap, &e.cfg, e.wsRoot)

	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	ref.p.Store(p)
	defer watchUploading(ds, func(u bool) { ref.Send(app.UploadingMsg{Uploading: u}) })()

	g, gctx := errgroup.WithContext(ctx)
	if child != nil {
		g.Go(func() error { return child.Serve(gctx) })
		if err := child.SendConfigRequest(); err != nil {
			return err
		}
		if err := child.SendIDRequest(); err != nil {
			return err
		}
	} else {
		g.Go(func() error {
			return ag.WatchPorts(gctx, e.cfg.PortScanInterval(), func(ports []devicestate.Port) {
				ref.Send(app.DevicesMsg{Devices: agent.Devices(ports)})
			})
		})
	}

	g.Go(func() error {
		err := config.Watch(gctx, e.wsRoot, 0, func(c config.Config) {
			ref.Send(app.ConfigReloadedMsg{Config: c})
		})
		if err != nil {
			e.logger.Warn("config reload disabled", "error", err)
		}
		return nil
	})

	_, runErr := p.Run()
	interrupted := ctx.Err() != nil
	if child != nil {
		if err := child.SendUnload(); err == nil {
			child.Flush()
		}
	}
	cancel()
	if err := g.Wait(); err != nil {
		e.logger.Warn("monitor background task failed", "error", err)
	}
	if runErr != nil && !interrupted {
		return fmt.Errorf("monitor: %w", runErr)
	}
	return nil
}
