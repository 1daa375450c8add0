package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ytbulk"
	"ytbulk/config"
	"ytbulk/storage"
	"ytbulk/youtube"
)

const version = "0.1.0"

// errFailed marks a failure whose message was already printed.
var errFailed = errors.New("failed")

type globals struct {
	jsonOut bool
	verbose bool
	app     *ytbulk.App
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "ytbulk",
		Short:         "Bulk-edit the metadata of your YouTube videos",
		Long:          "Review and edit titles, descriptions, privacy and categories of the videos on your own channel.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			level := cfg.SlogLevel()
			if g.verbose {
				level = slog.LevelDebug
			}
			logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
			g.app, err = ytbulk.New(cfg, ytbulk.WithLogger(logger))
			return err
		},
	}
	root.PersistentFlags().BoolVar(&g.jsonOut, "json", false, "Print results as JSON")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		authCmd(g),
		credentialsCmd(g),
		listCmd(g),
		updateCmd(g),
		batchCmd(g),
		backupCmd(g),
		categoriesCmd(g),
		channelCmd(g),
		thumbnailCmd(g),
		cacheCmd(g),
	)
	return root
}

func authCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to your channel",
		Long:  "Validate or refresh the stored token, opening the browser for consent when needed.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := g.app.Authenticate(cmd.Context())
			return g.report(cmd.OutOrStdout(), r, r.Success, r.Error, "Authenticated.")
		},
	}
}

func credentialsCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the OAuth client credentials file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Check that a usable credentials file is installed",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r := g.app.CheckCredentials()
				return g.report(cmd.OutOrStdout(), r, r.Valid, r.Error, "Credentials OK: "+r.Path)
			},
		},
		&cobra.Command{
			Use:   "install <client-secret.json>",
			Short: "Install a client secret downloaded from the Google Cloud console",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				r := g.app.InstallCredentials(args[0])
				return g.report(cmd.OutOrStdout(), r, r.Success, r.Error, r.Message)
			},
		},
		&cobra.Command{
			Use:   "remove",
			Short: "Delete the credentials file and stored token",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				r := g.app.RemoveCredentials()
				return g.report(cmd.OutOrStdout(), r, r.Success, r.Error, "Credentials removed.")
			},
		},
	)
	return cmd
}

func listCmd(g *globals) *cobra.Command {
	var (
		channel string
		maxVideos int
		save    bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch and list the channel's videos",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(os.Stderr, "Fetching videos...")
			r := g.app.LoadVideos(cmd.Context(), channel, maxVideos)
			if !r.Success {
				return g.fail(cmd.OutOrStdout(), r, r.Error)
			}
			if save {
				if s := g.app.SaveBackup(""); !s.Success {
					return g.fail(cmd.OutOrStdout(), s, s.Error)
				} else if !g.jsonOut {
					fmt.Fprintln(os.Stderr, s.Message)
				}
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			printVideos(cmd.OutOrStdout(), r.Videos)
			return nil
		},
	}
	cmd.Flags().StringVar(&channel, "channel", "", "Channel ID (default: your channel)")
	cmd.Flags().IntVar(&maxVideos, "max", 0, "Maximum videos to fetch (0 = configured max_results)")
	cmd.Flags().BoolVar(&save, "save", false, "Write the fetched videos to the backup file")
	return cmd
}

func updateCmd(g *globals) *cobra.Command {
	var title, description, privacy, category string
	cmd := &cobra.Command{
		Use:   "update <video-id>",
		Short: "Update one video's metadata",
		Long: `Update one video. --title and --description are both sent; pass
--description "" to clear it. Privacy is only changed when --privacy is set.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.authenticate(cmd); err != nil {
				return err
			}
			r := g.app.UpdateVideo(cmd.Context(), args[0], title, description, privacy, category)
			return g.report(cmd.OutOrStdout(), r, r.Success, r.Error, "Updated "+args[0]+".")
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "New title")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().StringVar(&privacy, "privacy", "", "public, unlisted or private")
	cmd.Flags().StringVar(&category, "category", "", "Category ID (see ytbulk categories)")
	cmd.MarkFlagRequired("title")
	cmd.MarkFlagRequired("category")
	return cmd
}

func batchCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "batch <updates.json>",
		Short: "Apply a list of updates from a JSON file",
		Long: `Apply updates in order. The file holds an array of objects with
video_id, title, description and optional privacy_status and category_id.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var updates []youtube.UpdateRequest
			if err := json.Unmarshal(data, &updates); err != nil {
				return fmt.Errorf("parsing %s: %w", args[0], err)
			}
			if err := g.authenticate(cmd); err != nil {
				return err
			}

			r := g.app.UpdateVideosBatch(cmd.Context(), updates)
			out := cmd.OutOrStdout()
			if g.jsonOut {
				if err := writeJSON(out, r); err != nil {
					return err
				}
			} else {
				w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
				fmt.Fprintln(w, "VIDEO\tRESULT")
				for _, s := range r.Results.Successful {
					fmt.Fprintf(w, "%s\tok: %s\n", s.VideoID, truncate(s.Title, 60))
				}
				for _, f := range r.Results.Failed {
					fmt.Fprintf(w, "%s\tfailed: %s\n", f.VideoID, f.Error)
				}
				w.Flush()
				fmt.Fprintf(out, "\n%d updated, %d failed, %d total\n",
					r.Summary.Successful, r.Summary.Failed, r.Summary.Total)
			}
			if !r.AllSucceeded() {
				return errFailed
			}
			return nil
		},
	}
}

func backupCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Save or inspect catalog backups",
	}
	var maxVideos int
	save := &cobra.Command{
		Use:   "save [path]",
		Short: "Fetch the channel's videos and write them to a backup file",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := g.app.LoadVideos(cmd.Context(), "", maxVideos)
			if !r.Success {
				return g.fail(cmd.OutOrStdout(), r, r.Error)
			}
			s := g.app.SaveBackup(firstArg(args))
			return g.report(cmd.OutOrStdout(), s, s.Success, s.Error, s.Message)
		},
	}
	save.Flags().IntVar(&maxVideos, "max", 0, "Maximum videos to fetch (0 = configured max_results)")

	load := &cobra.Command{
		Use:   "load [path]",
		Short: "Read a backup file and list its videos",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r := g.app.LoadBackup(firstArg(args))
			if !r.Success {
				if r.Error == "" {
					return g.fail(cmd.OutOrStdout(), r, r.Message)
				}
				return g.fail(cmd.OutOrStdout(), r, r.Error)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			printVideos(cmd.OutOrStdout(), r.Videos)
			return nil
		},
	}
	cmd.AddCommand(save, load)
	return cmd
}

func categoriesCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "categories",
		Short: "List assignable video categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.authenticate(cmd); err != nil {
				return err
			}
			r := g.app.VideoCategories(cmd.Context())
			if !r.Success {
				return g.fail(cmd.OutOrStdout(), r, r.Error)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE")
			for _, c := range sortedCategories(r.Categories) {
				fmt.Fprintf(w, "%s\t%s\n", c.ID, c.Title)
			}
			return w.Flush()
		},
	}
}

func channelCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "channel",
		Short: "Show the authenticated channel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := g.authenticate(cmd); err != nil {
				return err
			}
			r := g.app.ChannelInfo(cmd.Context())
			if !r.Success {
				return g.fail(cmd.OutOrStdout(), r, r.Error)
			}
			if g.jsonOut {
				return writeJSON(cmd.OutOrStdout(), r)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", r.Channel.Name, r.Channel.ID)
			if r.Channel.Country != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Country: %s\n", r.Channel.Country)
			}
			return nil
		},
	}
}

func thumbnailCmd(g *globals) *cobra.Command {
	return &cobra.Command{
		Use:   "thumbnail <cache-ref>",
		Short: "Print the local path of a cached thumbnail",
		Long:  "Resolve a cache:// reference from a listing or backup. The image is downloaded if needed.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := g.app.Thumbnail(cmd.Context(), args[0])
			if !ok {
				return fmt.Errorf("thumbnail %s is not available", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func cacheCmd(g *globals) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the thumbnail cache",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete downloaded thumbnails",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			r := g.app.ClearCache()
			return g.report(cmd.OutOrStdout(), r, r.Success, r.Error, "Cache cleared.")
		},
	})
	return cmd
}

func (g *globals) authenticate(cmd *cobra.Command) error {
	r := g.app.Authenticate(cmd.Context())
	if !r.Success {
		return g.fail(cmd.OutOrStdout(), r, r.Error)
	}
	return nil
}

// report prints v as JSON, or msg on success and errMsg on failure.
func (g *globals) report(w io.Writer, v any, ok bool, errMsg, msg string) error {
	if !ok {
		return g.fail(w, v, errMsg)
	}
	if g.jsonOut {
		return writeJSON(w, v)
	}
	if msg != "" {
		fmt.Fprintln(w, msg)
	}
	return nil
}

func (g *globals) fail(w io.Writer, v any, errMsg string) error {
	if g.jsonOut {
		writeJSON(w, v)
		return errFailed
	}
	return errors.New(errMsg)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printVideos(out io.Writer, videos []storage.VideoRecord) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPRIVACY\tVIEWS\tPUBLISHED\tTITLE")
	for _, v := range videos {
		var views uint64
		if v.Statistics != nil {
			views = v.Statistics.ViewCount
		}
		published := v.PublishedAt
		if len(published) > 10 {
			published = published[:10]
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", v.ID, v.PrivacyStatus, views, published, truncate(v.Title, 60))
	}
	w.Flush()
	fmt.Fprintf(out, "\nTotal: %d videos\n", len(videos))
}

func sortedCategories(m map[string]youtube.Category) []youtube.Category {
	out := make([]youtube.Category, 0, len(m))
	for _, c := range m {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b youtube.Category) int {
		return strings.Compare(a.Title, b.Title)
	})
	return out
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(strings.ReplaceAll(s, "\n", " "))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n-3]) + "..."
}
