package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/pterm/pterm"
	"github.com/samber/lo"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/repos/sitelist"
	"github.com/haukened/distraction-block/internal/blocker/services/editor"
)

// DaemonService is the part of the daemon API blockctl talks to.
type DaemonService interface {
	editor.Messenger
	Focus(ctx context.Context) error
}

// BlockCmd implements every subcommand against an injected daemon.
type BlockCmd struct {
	daemon DaemonService
	out    io.Writer
	logger log.Logger
}

type StatusInput struct {
	Output string
}

type SitesInput struct {
	Sites []string
}

type ImportInput struct {
	Path   string
	Format string
	Output string
}

func (b BlockCmd) editor(ctx context.Context) (*editor.Editor, error) {
	e := editor.New(b.daemon, b.logger)
	if err := e.Load(ctx); err != nil {
		pterm.Error.WithWriter(b.out).Println("Could not reach blockd. Is the daemon running?")
		return nil, err
	}
	return e, nil
}

func (b BlockCmd) Status(ctx context.Context, in StatusInput) error {
	if in.Output != "" && in.Output != "json" {
		return fmt.Errorf("unsupported --output value: use 'json'")
	}

	st, err := b.daemon.GetStatus(ctx)
	if err != nil {
		pterm.Error.WithWriter(b.out).Println("Could not reach blockd. Is the daemon running?")
		return err
	}

	if in.Output == "json" {
		enc := json.NewEncoder(b.out)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}

	state := pterm.FgRed.Sprint("off")
	if st.IsBlocking {
		state = pterm.FgGreen.Sprint("on")
	}
	pterm.Fprintln(b.out, "Blocking: "+state)

	if len(st.BlockedSites) == 0 {
		pterm.Info.WithWriter(b.out).Println("No sites blocked")
		return nil
	}
	rows := pterm.TableData{{"#", "Site"}}
	for i, s := range st.BlockedSites {
		rows = append(rows, []string{fmt.Sprint(i + 1), s})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(rows).WithWriter(b.out).Render()
}

// SetBlocking switches the master toggle.
func (b BlockCmd) SetBlocking(ctx context.Context, on bool) error {
	e, err := b.editor(ctx)
	if err != nil {
		return err
	}
	if err := e.Toggle(ctx, on); err != nil {
		return b.notSaved(err)
	}
	if on {
		pterm.Success.WithWriter(b.out).Println("Blocking enabled")
	} else {
		pterm.Success.WithWriter(b.out).Println("Blocking disabled")
	}
	return nil
}

// Add normalizes and appends each site. The first invalid entry stops the
// run; entries before it are already saved.
func (b BlockCmd) Add(ctx context.Context, in SitesInput) error {
	e, err := b.editor(ctx)
	if err != nil {
		return err
	}
	for _, raw := range in.Sites {
		before := len(e.Sites())
		site, err := e.Add(ctx, raw)
		switch {
		case errors.Is(err, domain.ErrInvalidDomain), errors.Is(err, domain.ErrEmptySite):
			pterm.Error.WithWriter(b.out).Println(domain.InvalidDomainMessage)
			return fmt.Errorf("%q: %w", raw, err)
		case err != nil:
			return b.notSaved(err)
		}
		if len(e.Sites()) == before {
			pterm.Info.WithWriter(b.out).Printfln("%s is already blocked", site)
			continue
		}
		pterm.Success.WithWriter(b.out).Printfln("Added %s", site)
	}
	return nil
}

func (b BlockCmd) Remove(ctx context.Context, in SitesInput) error {
	e, err := b.editor(ctx)
	if err != nil {
		return err
	}
	for _, raw := range in.Sites {
		// Accept the same spellings add does.
		site, nerr := domain.NormalizeSite(raw)
		if nerr != nil {
			site = raw
		}
		removed, err := e.Remove(ctx, site)
		if err != nil {
			return b.notSaved(err)
		}
		if !removed {
			pterm.Warning.WithWriter(b.out).Printfln("%s is not in the block list", site)
			continue
		}
		pterm.Success.WithWriter(b.out).Printfln("Removed %s", site)
	}
	return nil
}

// Import merges a plain or hosts-format list file in one save.
func (b BlockCmd) Import(ctx context.Context, in ImportInput) error {
	format, err := sitelist.ParseFormat(in.Format)
	if err != nil {
		return err
	}
	entries, err := sitelist.ReadFile(in.Path, format, b.logger)
	if err != nil {
		return err
	}
	e, err := b.editor(ctx)
	if err != nil {
		return err
	}
	added, rejected, err := e.AddAll(ctx, entries)
	if err != nil {
		return b.notSaved(err)
	}

	if in.Output == "json" {
		enc := json.NewEncoder(b.out)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"added":    lo.Ternary(added == nil, []string{}, added),
			"rejected": lo.Ternary(rejected == nil, []string{}, rejected),
			"total":    len(e.Sites()),
		})
	}
	for _, r := range rejected {
		pterm.Warning.WithWriter(b.out).Printfln("Skipped %q: %s", r, domain.InvalidDomainMessage)
	}
	pterm.Success.WithWriter(b.out).Printfln("Imported %d new sites from %s (%d total)", len(added), in.Path, len(e.Sites()))
	return nil
}

// Refresh asks the daemon to re-read its store, as a window focus would.
func (b BlockCmd) Refresh(ctx context.Context) error {
	if err := b.daemon.Focus(ctx); err != nil {
		pterm.Error.WithWriter(b.out).Println("Could not reach blockd. Is the daemon running?")
		return err
	}
	pterm.Success.WithWriter(b.out).Println("Settings reloaded")
	return nil
}

func (b BlockCmd) notSaved(err error) error {
	pterm.Error.WithWriter(b.out).Println("Changes were not saved")
	return err
}
