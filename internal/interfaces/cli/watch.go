package cli

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/turtacn/torsion-fragmenter/internal/application/fragmentation"
	"github.com/turtacn/torsion-fragmenter/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/torsion-fragmenter/pkg/errors"
)

const defaultSettle = 500 * time.Millisecond

func newWatchCmd() *cobra.Command {
	flags := &fragmentFlags{}
	var (
		outDir   string
		existing bool
		settle   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch DIR",
		Short: "Fragment molecule files as they appear in a directory",
		Long: "Watch fragments every .smi or .sdf file created or rewritten in DIR and\n" +
			"writes <name>.json into --out.  Files are processed once writes have\n" +
			"settled.  Stop with Ctrl-C.",
		Example: "  fragmenter watch inbox/ --out reports/ --existing",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cliCtx, err := GetCLIContext(cmd)
			if err != nil {
				return err
			}
			flags.apply(cmd.Flags(), cliCtx.Config)
			c, _, err := container(cmd)
			if err != nil {
				return err
			}
			defer c.Close()
			if err := os.MkdirAll(outDir, 0o755); err != nil {
				return errors.Wrap(err, errors.ErrCodeInternal, "create output directory").WithDetail(outDir)
			}

			log := cliCtx.Logger.With(logging.String("dir", args[0]))
			handle := func(ctx context.Context, path string) {
				fragmentFile(ctx, c.Service, path, outDir, flags.weightTag, c.Options(), log)
			}
			if existing {
				entries, err := os.ReadDir(args[0])
				if err != nil {
					return errors.Wrap(err, errors.ErrCodeBadRequest, "read directory").WithDetail(args[0])
				}
				for _, e := range entries {
					if !e.IsDir() && isMoleculeFile(e.Name()) {
						handle(cmd.Context(), filepath.Join(args[0], e.Name()))
					}
				}
			}
			log.Info("watching for molecule files", logging.String("out", outDir))
			return watchDir(cmd.Context(), args[0], settle, log, handle)
		},
	}
	flags.register(cmd.Flags())
	cmd.Flags().StringVar(&outDir, "out", ".", "directory for the JSON reports")
	cmd.Flags().BoolVar(&existing, "existing", false, "also fragment files already in the directory")
	cmd.Flags().DurationVar(&settle, "settle", defaultSettle, "quiet period after the last write before a file is read")
	return cmd
}

// fragmentFile fragments one file into outDir/<stem>.json.  Failures are
// logged so that one bad file does not stop the watch.
func fragmentFile(ctx context.Context, svc fragmentation.Service, path, outDir, weightTag string, opts fragmentation.Options, log logging.Logger) {
	log = log.With(logging.String("file", filepath.Base(path)))
	report, err := runFragment(ctx, svc, path, weightTag, opts, log)
	if err != nil {
		log.Error("fragmentation failed", logging.Err(err))
		return
	}
	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	dest := filepath.Join(outDir, stem+".json")
	if err := writeReport(dest, report); err != nil {
		log.Error("report write failed", logging.Err(err))
		return
	}
	log.Info("file fragmented",
		logging.String("job_id", report.Provenance.JobID),
		logging.Int("molecules", len(report.Results)),
		logging.Int("skipped", len(report.Skipped)),
		logging.String("report", dest))
}

// watchDir calls handle for each molecule file in dir that is created or
// written, once no event for it has arrived for settle.  It returns when ctx
// is done.
func watchDir(ctx context.Context, dir string, settle time.Duration, log logging.Logger, handle func(context.Context, string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "create file watcher")
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "watch directory").WithDetail(dir)
	}
	if settle <= 0 {
		settle = defaultSettle
	}

	d := newDebouncer(settle, func(name string) { handle(ctx, name) })
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("file watcher error", logging.Err(err))
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) || !isMoleculeFile(ev.Name) {
				continue
			}
			d.touch(ev.Name)
		}
	}
}

// pendingFile is the timer scheduled for one file.  Its identity tells a
// fired callback whether a later event has replaced it.
type pendingFile struct {
	timer *time.Timer
}

// debouncer runs fn for a name once touch has not been called for it during
// settle.
type debouncer struct {
	settle time.Duration
	fn     func(name string)

	mu      sync.Mutex
	pending map[string]*pendingFile
	wg      sync.WaitGroup
}

func newDebouncer(settle time.Duration, fn func(name string)) *debouncer {
	return &debouncer{settle: settle, fn: fn, pending: map[string]*pendingFile{}}
}

func (d *debouncer) touch(name string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pending[name]; ok && p.timer.Stop() {
		p.timer.Reset(d.settle)
		return
	}
	p := &pendingFile{}
	d.wg.Add(1)
	p.timer = time.AfterFunc(d.settle, func() {
		defer d.wg.Done()
		d.release(name, p)
		d.fn(name)
	})
	d.pending[name] = p
}

// release forgets name if p is still its pending entry.  An entry created
// while p's callback waited for the lock stays scheduled.
func (d *debouncer) release(name string, p *pendingFile) {
	d.mu.Lock()
	if d.pending[name] == p {
		delete(d.pending, name)
	}
	d.mu.Unlock()
}

// stop cancels timers that have not fired and waits for running callbacks.
func (d *debouncer) stop() {
	d.mu.Lock()
	for name, p := range d.pending {
		if p.timer.Stop() {
			d.wg.Done()
		}
		delete(d.pending, name)
	}
	d.mu.Unlock()
	d.wg.Wait()
}
