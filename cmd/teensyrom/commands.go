package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/mmcdole/teensyrom/internal/domain"
	"github.com/mmcdole/teensyrom/internal/serial"
	"github.com/mmcdole/teensyrom/internal/store"
	"github.com/mmcdole/teensyrom/internal/watcher"
)

func (c *cli) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports, TeensyROM candidates first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newPrinter(cmd.OutOrStdout())
			ports, err := serial.ListPorts()
			if err != nil {
				return err
			}
			if len(ports) == 0 {
				out.Warn("no serial ports found")
				return nil
			}
			for _, p := range ports {
				marker := " "
				if p.IsTeensy() {
					marker = out.render(AccentStyle, "*")
				}
				detail := p.Product
				if p.IsUSB {
					detail = strings.TrimSpace(fmt.Sprintf("%s %s:%s", p.Product, p.VID, p.PID))
				}
				out.Printf("%s %-20s %s\n", marker, p.Name, out.render(DimStyle, detail))
			}
			return nil
		},
	}
}

func (c *cli) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the cartridge answers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			banner, err := c.app.client.Ping(ctx)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if banner == "" {
				banner = "teensyrom answered"
			}
			out.Success("%s on %s", banner, c.app.port.Name())
			return nil
		},
	}
}

func (c *cli) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Reset the C64",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			text, err := c.app.client.Reset(ctx)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			out.Success("reset sent")
			if t := strings.TrimSpace(text); t != "" {
				out.Println(out.render(DimStyle, t))
			}
			return nil
		},
	}
}

func (c *cli) lsCmd() *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory, from the cache when possible",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := "/"
			if len(args) == 1 {
				path = args[0]
			}
			out := newPrinter(cmd.OutOrStdout())

			if !refresh {
				if node, ok := c.app.queries.GetCachedDirectory(path); ok {
					out.Listing(node)
					if age := c.app.snapshotAge(); age != "" {
						out.Println(out.render(DimStyle, age))
					}
					return nil
				}
			}
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			node, err := c.app.library.RefreshDirectory(ctx, path)
			if err != nil {
				return err
			}
			c.app.cacheChanged()
			out.Listing(node)
			return nil
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "re-list from the device")
	return cmd
}

func (c *cli) launchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "launch <path>",
		Short: "Run a SID, PRG or CRT on the C64",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			file := c.app.fileEntry(args[0])
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			result, err := c.app.playback.Launch(ctx, file)
			if err != nil {
				return err
			}
			reportLaunch(newPrinter(cmd.OutOrStdout()), file, result)
			return nil
		},
	}
}

func reportLaunch(out *printer, file domain.FileEntry, result domain.LaunchResult) {
	if result == domain.LaunchSidError {
		out.Warn("%s was accepted but could not be played", file.Path)
		return
	}
	out.Success("launched %s", out.fileName(file))
}

func (c *cli) subtuneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subtune <n>",
		Short: "Switch the playing SID to subtune n (1-256)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("subtune must be a number: %w", err)
			}
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			if err := c.app.playback.PlaySubtune(ctx, n); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("playing subtune %d", n)
			return nil
		},
	}
}

func (c *cli) pauseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause or resume SID playback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			if err := c.app.playback.Pause(ctx); err != nil {
				return err
			}
			newPrinter(cmd.OutOrStdout()).Success("toggled playback")
			return nil
		},
	}
}

func (c *cli) copyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "copy <src> <dst>",
		Short: "Copy a file on the device",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			src := c.app.fileEntry(args[0])
			dst := store.Join(args[1])
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			if err := c.app.client.CopyFile(ctx, c.app.target.Storage, src.Path, dst); err != nil {
				return err
			}
			c.app.cache.UpsertFile(domain.FileEntry{
				Name: store.BaseName(dst),
				Path: dst,
				Size: src.Size,
				Kind: domain.KindFromName(dst),
			})
			c.app.cacheChanged()
			newPrinter(cmd.OutOrStdout()).Success("copied %s to %s", src.Path, dst)
			return nil
		},
	}
}

func (c *cli) sendCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send <local-file> [remote-dir]",
		Short: "Upload a local file to the device",
		Long:  "Upload a local file. Without remote-dir the file goes to the auto-transfer folder for its kind.",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			name := filepath.Base(args[0])
			kind := domain.KindFromName(name)
			dir := c.app.target.TransferPath(kind)
			if len(args) == 2 {
				dir = store.Join(args[1])
			}
			item := domain.FileTransferItem{
				SourcePath: args[0],
				TargetPath: dir,
				Name:       name,
				Size:       info.Size(),
				Kind:       kind,
				Storage:    c.app.target.Storage,
			}

			if err := c.app.connect(ctx); err != nil {
				return err
			}
			spin := startSpinner(cmd.ErrOrStderr(), "Sending "+name+"...")
			_, err = c.app.library.SaveFiles(ctx, []domain.FileTransferItem{item})
			spin.Stop()
			c.app.metrics.ObserveTransfer(item.Size, err)
			if err != nil {
				return err
			}
			c.app.cacheChanged()
			newPrinter(cmd.OutOrStdout()).Success("sent %s (%s) to %s", name, humanize.Bytes(uint64(item.Size)), item.DevicePath())
			return nil
		},
	}
}

func (c *cli) cacheAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cache-all",
		Short: "Walk the whole device and cache every directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := c.app.connect(ctx); err != nil {
				return err
			}

			spin := startSpinner(cmd.ErrOrStderr(), "Caching...")
			result, err := c.app.library.CacheAll(ctx, func(done, total int, path string) {
				spin.Update(fmt.Sprintf("Caching %d/%d %s", done, total, path))
			})
			spin.Stop()
			if result.Directories > 0 {
				c.app.cacheChanged()
			}
			if err != nil {
				return err
			}

			out := newPrinter(cmd.OutOrStdout())
			out.Success("cached %s directories, %s files", humanize.Comma(int64(result.Directories)), humanize.Comma(int64(result.Files)))
			for _, p := range result.Failed {
				out.Warn("could not list %s", p)
			}
			return nil
		},
	}
}

func parseKinds(values []string) ([]domain.FileKind, error) {
	var kinds []domain.FileKind
	for _, v := range values {
		k := domain.ParseFileKind(v)
		if k == domain.KindUnknown {
			return nil, fmt.Errorf("unknown file kind %q (want sid, prg, crt or hex)", v)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

func (c *cli) searchCmd() *cobra.Command {
	var kindFlags []string
	var limit int
	cmd := &cobra.Command{
		Use:   "search <terms>...",
		Short: "Search cached files by name and path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kinds, err := parseKinds(kindFlags)
			if err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if c.app.cache.Len() == 0 {
				out.Warn("cache is empty; run cache-all first")
				return nil
			}
			results := c.app.search.Search(strings.Join(args, " "), kinds, limit)
			if len(results) == 0 {
				out.Println(out.render(DimStyle, "no matches"))
				return nil
			}
			for _, r := range results {
				dir := store.Join(store.ParentPath(r.File.Path))
				out.Printf("%s  %s\n", out.Highlight(r.File.Name, r.MatchedIndexes), out.render(DimStyle, dir))
			}
			if age := c.app.snapshotAge(); age != "" {
				out.Println(out.render(DimStyle, age))
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kindFlags, "kind", nil, "restrict to file kinds (sid, prg, crt, hex)")
	cmd.Flags().IntVar(&limit, "limit", 25, "maximum results (0 for all)")
	return cmd
}

func (c *cli) randomCmd() *cobra.Command {
	var kindFlags []string
	cmd := &cobra.Command{
		Use:   "random",
		Short: "Launch a random cached file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			kinds, err := parseKinds(kindFlags)
			if err != nil {
				return err
			}
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			file, result, err := c.app.playback.PlayRandom(ctx, kinds...)
			if err != nil {
				return err
			}
			reportLaunch(newPrinter(cmd.OutOrStdout()), file, result)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&kindFlags, "kind", nil, "file kinds to pick from (default: sid, prg, crt)")
	return cmd
}

func (c *cli) favoriteCmd() *cobra.Command {
	var list bool
	var kindFlags []string
	cmd := &cobra.Command{
		Use:   "favorite <path> | --list",
		Short: "Copy a file into the favorites folder for its kind",
		Args: func(cmd *cobra.Command, args []string) error {
			if list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newPrinter(cmd.OutOrStdout())
			if list {
				kinds, err := parseKinds(kindFlags)
				if err != nil {
					return err
				}
				return c.listFavorites(out, kinds)
			}

			ctx := cmd.Context()
			file := c.app.fileEntry(args[0])
			if err := c.app.connect(ctx); err != nil {
				return err
			}
			fav, err := c.app.favorites.Save(ctx, file)
			if err != nil {
				return err
			}
			c.app.cacheChanged()
			out.Success("saved %s", fav.Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&list, "list", false, "list cached favorites instead of saving one")
	cmd.Flags().StringSliceVar(&kindFlags, "kind", nil, "with --list, restrict to file kinds (default: sid, prg, crt)")
	return cmd
}

func (c *cli) listFavorites(out *printer, kinds []domain.FileKind) error {
	if len(kinds) == 0 {
		kinds = domain.LaunchableKinds
	}
	var found int
	for _, kind := range kinds {
		for _, f := range c.app.favorites.List(kind) {
			out.Printf("%s  %s\n", out.fileName(f), out.render(DimStyle, store.Join(store.ParentPath(f.Path))))
			found++
		}
	}
	if found == 0 {
		out.Println(out.render(DimStyle, "no cached favorites"))
	}
	return nil
}

func (c *cli) cacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or clear the local file tree cache",
	}
	cmd.AddCommand(c.cacheInfoCmd(), c.cacheClearCmd())
	return cmd
}

func (c *cli) cacheInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show how much of the device is cached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := newPrinter(cmd.OutOrStdout())
			files := c.app.queries.CachedFiles()
			var size int64
			for _, f := range files {
				size += f.Size
			}
			out.Printf("%s storage: %s directories, %s files, %s\n",
				c.app.target.Storage,
				humanize.Comma(int64(c.app.cache.Len())),
				humanize.Comma(int64(len(files))),
				humanize.Bytes(uint64(size)))
			if age := c.app.snapshotAge(); age != "" {
				out.Println(out.render(DimStyle, age))
			}
			return nil
		},
	}
}

func (c *cli) cacheClearCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget the cached file tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.app.clearCache(all); err != nil {
				return err
			}
			out := newPrinter(cmd.OutOrStdout())
			if all {
				out.Success("removed every cached snapshot")
				return nil
			}
			out.Success("cleared %s cache", c.app.target.Storage)
			return nil
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "remove snapshots for every storage and device")
	return cmd
}

func (c *cli) watchCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Upload files dropped into a local folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a := c.app
			if dir == "" {
				dir = a.cfg.Watch.Directory
			}
			if err := a.connect(ctx); err != nil {
				return err
			}

			w, err := watcher.New(watcher.Options{
				Directory:  dir,
				Extensions: a.cfg.Watch.Extensions,
				Debounce:   a.cfg.Watch.Debounce,
			}, a.library, a.target, a.logger)
			if err != nil {
				return err
			}
			defer w.Close()

			out := newPrinter(cmd.OutOrStdout())
			w.OnTransfer = func(saved []domain.FileTransferItem, err error) {
				for _, item := range saved {
					a.metrics.ObserveTransfer(item.Size, nil)
					out.Success("%s -> %s", item.Name, item.DevicePath())
				}
				if err != nil {
					a.metrics.ObserveTransfer(0, err)
					out.Warn("%v", err)
				}
				a.cacheChanged()
			}

			if addr := a.cfg.Metrics.Addr; addr != "" {
				go func() {
					if err := a.metrics.Serve(ctx, addr); err != nil {
						a.logger.Error("metrics server stopped", "error", err)
					}
				}()
				out.Println(out.render(DimStyle, "metrics on http://"+addr+"/metrics"))
			}

			out.Println(out.render(TitleStyle, "Watching "+dir) + out.render(DimStyle, " (ctrl-c to stop)"))
			if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "", "folder to watch (default from config)")
	return cmd
}
