package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"catalogsync/internal/core/domain"
	"catalogsync/internal/core/services"
	apperrors "catalogsync/pkg/errors"
	"catalogsync/pkg/validation"

	"github.com/spf13/cobra"
)

type browseOptions struct {
	configFile  string
	logLevel    string
	view        string
	page        int
	query       string
	genre       string
	releaseDate string
	adult       string
	external    []string
	asJSON      bool
	timeout     time.Duration
}

// NewBrowseCommand fetches one page of a view, or TMDB sections, and prints it.
func NewBrowseCommand() *cobra.Command {
	opts := &browseOptions{}

	cmd := &cobra.Command{
		Use:   "browse",
		Short: "Fetch and print one catalog page",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := opts.filter()
			if err != nil {
				return err
			}
			if err := validation.ValidatePage(opts.page); err != nil {
				return err
			}

			cfg, err := loadConfig(opts.configFile)
			if err != nil {
				return err
			}
			zapLogger := newLogger(cfg, opts.logLevel)
			defer zapLogger.Sync()

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			a, err := newApp(ctx, cfg, zapLogger.Sugar())
			if err != nil {
				return err
			}
			defer a.close()

			out := cmd.OutOrStdout()
			if len(opts.external) > 0 {
				if a.external == nil {
					return fmt.Errorf("external catalog is not configured, set tmdb.enabled and tmdb.api_key")
				}
				return printSections(out, a.external.Sections(ctx, opts.external...), opts.asJSON)
			}

			v, err := a.view(opts.view)
			if err != nil {
				return err
			}
			snap := fetchPage(ctx, v, filter, opts.page)
			if snap.Status == domain.ViewFailed {
				return fmt.Errorf("%s: %s", snap.Name, apperrors.UserMessage(snap.Err, "failed to load page"))
			}
			return printSnapshot(out, snap, opts.asJSON)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.configFile, "config", "c", "", "config file path")
	f.StringVar(&opts.logLevel, "log-level", "warn", "override logging.level")
	f.StringVar(&opts.view, "view", "films", "view to fetch (films or series)")
	f.IntVarP(&opts.page, "page", "p", 1, "page number, starting at 1")
	f.StringVarP(&opts.query, "query", "q", "", "search text")
	f.StringVar(&opts.genre, "genre", "", "genre filter")
	f.StringVar(&opts.releaseDate, "release-date", "", "release date filter")
	f.StringVar(&opts.adult, "adult", "", "adult filter (true or false)")
	f.StringSliceVar(&opts.external, "external", nil, "print TMDB sections instead (trending, popular, ...)")
	f.BoolVar(&opts.asJSON, "json", false, "print JSON")
	f.DurationVar(&opts.timeout, "timeout", 30*time.Second, "overall timeout")

	return cmd
}

func (o *browseOptions) filter() (domain.FilterState, error) {
	filter := domain.FilterState{
		Query:       strings.TrimSpace(o.query),
		Genre:       o.genre,
		ReleaseDate: o.releaseDate,
	}
	if o.adult != "" {
		b, err := strconv.ParseBool(o.adult)
		if err != nil {
			return filter, fmt.Errorf("invalid --adult value %q", o.adult)
		}
		filter.Adult = &b
	}
	return filter, nil
}

// fetchPage drives the view to (filter, page) and waits for the last fetch to land.
func fetchPage(ctx context.Context, v *services.ViewState, filter domain.FilterState, page int) services.ViewSnapshot {
	v.SetFilter(ctx, filter)
	if page > 1 {
		v.SetPage(ctx, page)
	}
	v.Wait()
	return v.Current()
}

type printedItem struct {
	Key      domain.ItemKey      `json:"key"`
	Title    string              `json:"title"`
	Kind     domain.MediaKind    `json:"kind"`
	Counters domain.Counters     `json:"counters"`
	Reaction domain.ReactionKind `json:"reaction"`
}

type printedPage struct {
	View          string             `json:"view"`
	Filter        domain.FilterState `json:"filter"`
	Page          int                `json:"page"`
	TotalPages    int                `json:"totalPages"`
	TotalElements int64              `json:"totalElements"`
	Items         []printedItem      `json:"items"`
}

func toPrinted(items []domain.CatalogItem) []printedItem {
	out := make([]printedItem, 0, len(items))
	for _, it := range items {
		out = append(out, printedItem{
			Key:      it.Key(),
			Title:    it.Title,
			Kind:     it.Kind,
			Counters: it.Counters,
			Reaction: it.Reaction,
		})
	}
	return out
}

func printSnapshot(w io.Writer, snap services.ViewSnapshot, asJSON bool) error {
	p := printedPage{View: snap.Name, Filter: snap.Filter, Page: snap.Page, Items: []printedItem{}}
	if snap.Data != nil {
		p.TotalPages = snap.Data.TotalPages
		p.TotalElements = snap.Data.TotalElements
		p.Items = toPrinted(snap.Data.Items)
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(p)
	}

	fmt.Fprintf(w, "%s page %d/%d (%d titles)\n", p.View, p.Page, p.TotalPages, p.TotalElements)
	if len(p.Items) == 0 {
		fmt.Fprintln(w, "no titles")
		return nil
	}
	return writeItems(w, p.Items)
}

func printSections(w io.Writer, sections map[string][]domain.CatalogItem, asJSON bool) error {
	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	sort.Strings(names)

	if asJSON {
		out := make(map[string][]printedItem, len(sections))
		for _, name := range names {
			out[name] = toPrinted(sections[name])
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, name := range names {
		fmt.Fprintf(w, "== %s (%d)\n", name, len(sections[name]))
		if err := writeItems(w, toPrinted(sections[name])); err != nil {
			return err
		}
	}
	return nil
}

func writeItems(w io.Writer, items []printedItem) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTITLE\tLIKES\tDISLIKES\tREACTION")
	for _, it := range items {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", it.Key, it.Title, it.Counters.Likes, it.Counters.Dislikes, it.Reaction)
	}
	return tw.Flush()
}
