package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/buckleypaul/cloudeditor/internal/agent"
	"github.com/buckleypaul/cloudeditor/internal/config"
	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
	"github.com/buckleypaul/cloudeditor/internal/window"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "serve",
		Short:        "Serve the editor side of the monitor window bridge",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				e.cfg.BridgeAddr = addr
			}
			return serve(cmd.Context(), e)
		},
	}
	portFlags(cmd)
	cmd.Flags().String("addr", "", "listen address (default: configured bridge address)")
	return cmd
}

func serve(ctx context.Context, e *env) error {
	ds := devicestate.NewStore(devicestate.State{}, e.logger)
	ag := agent.New(ds, agent.Options{
		OpenTimeout:  e.cfg.OpenTimeout(),
		CloseTimeout: e.cfg.CloseTimeout(),
		Logger:       e.logger,
	})
	defer ag.Shutdown()

	parent := window.NewParent(window.ParentOptions{
		ChildOrigin: e.cfg.ChildOrigin,
		Export:      ds.Export,
		Closer:      ag,
		Logger:      e.logger,
	})
	defer watchUploading(ds, parent.SetUploading)()

	up := uploader.New(ds, uploader.Options{History: e.store, Logger: e.logger})

	mux := http.NewServeMux()
	mux.Handle("/window", window.Handler(parent, e.logger))
	mux.Handle("/upload", uploadHandler(up, parent, e.cfg, e.logger))
	srv := &http.Server{Addr: e.cfg.BridgeAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.logger.Info("bridge listening", "addr", e.cfg.BridgeAddr, "instance", parent.InstanceID())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	g.Go(func() error {
		return ag.WatchPorts(ctx, e.cfg.PortScanInterval(), func(ports []devicestate.Port) {
			devices := agent.Devices(ports)
			e.logger.Debug("ports changed", "count", len(devices))
			selectBoard(parent, devices, e.cfg.SerialPort)
			parent.SetDevices(devices)
		})
	})
	return g.Wait()
}

// selectBoard points the parent at the configured port, or at the first
// listed board when none is configured.
func selectBoard(parent *window.Parent, devices []devicestate.Device, port string) {
	for _, d := range devices {
		if port == "" || d.PortName == port {
			parent.Select(d.Name, d.PortName)
			return
		}
	}
}

type uploadResponse struct {
	ID       string `json:"id"`
	ExitCode int    `json:"exitCode"`
	Duration string `json:"duration"`
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
}

// uploadHandler runs an upload for the port given by the port query
// parameter, or the board selected for the monitor window, and answers
// with its result.
func uploadHandler(up *uploader.Uploader, parent *window.Parent, cfg config.Config, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		port := r.URL.Query().Get("port")
		if port == "" {
			_, port = parent.Selected()
		}
		if port == "" {
			http.Error(w, "no port selected", http.StatusBadRequest)
			return
		}

		res, err := up.Upload(r.Context(), port, cfg.UploadCommand)
		if errors.Is(err, uploader.ErrBusy) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		resp := uploadResponse{
			ID:       res.ID,
			ExitCode: res.ExitCode,
			Duration: res.Duration.Round(time.Millisecond).String(),
			Success:  err == nil && res.Success(),
		}
		if err != nil {
			resp.Error = err.Error()
			logger.Warn("upload request failed", "port", port, "error", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})
}
