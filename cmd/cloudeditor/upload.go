package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/buckleypaul/cloudeditor/internal/devicestate"
	"github.com/buckleypaul/cloudeditor/internal/reactive"
	"github.com/buckleypaul/cloudeditor/internal/upload"
	"github.com/buckleypaul/cloudeditor/internal/uploader"
)

func uploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "upload",
		Short:        "Run the configured upload command for a port",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd, false)
			if err != nil {
				return err
			}
			defer e.close()
			if e.cfg.SerialPort == "" {
				return errors.New("no port given and none configured")
			}
			tmpl, err := cmd.Flags().GetString("command")
			if err != nil {
				return err
			}
			if tmpl == "" {
				tmpl = e.cfg.UploadCommand
			}

			ds := devicestate.NewStore(devicestate.State{}, e.logger)
			unsub := upload.Responses(ds.Set, ds.State()).Subscribe(reactive.Observer[upload.Chunk]{
				Next: printChunk(cmd.OutOrStdout(), isTerminal(cmd.OutOrStdout())),
			})
			defer unsub()

			up := uploader.New(ds, uploader.Options{History: e.store, Logger: e.logger})
			res, err := up.Upload(cmd.Context(), e.cfg.SerialPort, tmpl)
			if err != nil {
				return err
			}
			if !res.Success() {
				return fmt.Errorf("upload failed with exit code %d", res.ExitCode)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nUpload finished in %s\n", res.Duration.Round(time.Millisecond))
			return nil
		},
	}
	portFlags(cmd)
	cmd.Flags().StringP("command", "c", "", "upload command, {port} is replaced (default: configured command)")
	return cmd
}

// printChunk writes upload output as it streams. On a terminal progress
// updates rewrite the current line; elsewhere only the last update before
// the next line is kept.
func printChunk(w io.Writer, tty bool) func(upload.Chunk) {
	progress := ""
	flush := func() {
		if progress == "" {
			return
		}
		if tty {
			fmt.Fprintln(w)
		} else {
			fmt.Fprintln(w, progress)
		}
		progress = ""
	}
	return func(c upload.Chunk) {
		var signal upload.Signal
		if c.Meta != nil {
			signal = c.Meta.Signal
		}
		switch signal {
		case upload.SignalEnd:
			flush()
		case upload.SignalCompileStreamUpdate:
			last := c.Value
			if i := strings.LastIndexByte(last, '\n'); i >= 0 {
				last = last[i+1:]
			}
			if tty {
				fmt.Fprintf(w, "\r%s", last)
			}
			progress = last
		default:
			flush()
			fmt.Fprintln(w, c.Value)
		}
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
