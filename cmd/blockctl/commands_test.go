package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/distraction-block/internal/blocker/common/log"
	"github.com/haukened/distraction-block/internal/blocker/domain"
	"github.com/haukened/distraction-block/internal/blocker/services/editor"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	os.Exit(m.Run())
}

// FakeDaemon records the last saved record and serves it back.
type FakeDaemon struct {
	GetStatusFunc      func(ctx context.Context) (domain.Status, error)
	UpdateBlockingFunc func(ctx context.Context, s domain.Settings) error
	FocusFunc          func(ctx context.Context) error

	status domain.Status
	saves  []domain.Settings
	focus  int
}

func (f *FakeDaemon) GetStatus(ctx context.Context) (domain.Status, error) {
	if f.GetStatusFunc != nil {
		return f.GetStatusFunc(ctx)
	}
	return f.status, nil
}

func (f *FakeDaemon) UpdateBlocking(ctx context.Context, s domain.Settings) error {
	if f.UpdateBlockingFunc != nil {
		return f.UpdateBlockingFunc(ctx, s)
	}
	f.saves = append(f.saves, s)
	f.status = domain.Status{IsBlocking: s.IsBlocking, BlockedSites: s.BlockedSites}
	return nil
}

func (f *FakeDaemon) Focus(ctx context.Context) error {
	if f.FocusFunc != nil {
		return f.FocusFunc(ctx)
	}
	f.focus++
	return nil
}

func newCmd(f *FakeDaemon) (BlockCmd, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return BlockCmd{daemon: f, out: buf, logger: log.NewNoopLogger()}, buf
}

func TestStatus_Table(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{IsBlocking: true, BlockedSites: []string{"facebook.com", "reddit.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Status(context.Background(), StatusInput{}))
	out := buf.String()
	assert.Contains(t, out, "Blocking: on")
	assert.Contains(t, out, "facebook.com")
	assert.Contains(t, out, "reddit.com")
}

func TestStatus_Empty(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Status(context.Background(), StatusInput{}))
	assert.Contains(t, buf.String(), "Blocking: off")
	assert.Contains(t, buf.String(), "No sites blocked")
}

func TestStatus_JSON(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{IsBlocking: true, BlockedSites: []string{"x.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Status(context.Background(), StatusInput{Output: "json"}))
	var got domain.Status
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, f.status, got)
}

func TestStatus_BadOutput(t *testing.T) {
	b, _ := newCmd(&FakeDaemon{})
	assert.Error(t, b.Status(context.Background(), StatusInput{Output: "yaml"}))
}

func TestStatus_Unreachable(t *testing.T) {
	f := &FakeDaemon{GetStatusFunc: func(context.Context) (domain.Status, error) {
		return domain.Status{}, errors.New("connection refused")
	}}
	b, buf := newCmd(f)

	assert.Error(t, b.Status(context.Background(), StatusInput{}))
	assert.Contains(t, buf.String(), "Could not reach blockd")
}

func TestSetBlocking(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{"reddit.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.SetBlocking(context.Background(), true))
	require.Len(t, f.saves, 1)
	assert.Equal(t, domain.Settings{BlockedSites: []string{"reddit.com"}, IsBlocking: true}, f.saves[0])
	assert.Contains(t, buf.String(), "Blocking enabled")

	require.NoError(t, b.SetBlocking(context.Background(), false))
	require.Len(t, f.saves, 2)
	assert.False(t, f.saves[1].IsBlocking)
	assert.Contains(t, buf.String(), "Blocking disabled")
}

func TestSetBlocking_SaveFails(t *testing.T) {
	f := &FakeDaemon{UpdateBlockingFunc: func(context.Context, domain.Settings) error {
		return errors.New("boom")
	}}
	b, buf := newCmd(f)

	err := b.SetBlocking(context.Background(), true)
	assert.ErrorIs(t, err, editor.ErrNotSaved)
	assert.Contains(t, buf.String(), "Changes were not saved")
}

func TestAdd_NormalizesAndSkipsDuplicates(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{"reddit.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Add(context.Background(), SitesInput{
		Sites: []string{"https://www.Facebook.com/home", "reddit.com"},
	}))
	require.Len(t, f.saves, 1)
	assert.Equal(t, []string{"reddit.com", "facebook.com"}, f.saves[0].BlockedSites)
	assert.Contains(t, buf.String(), "Added facebook.com")
	assert.Contains(t, buf.String(), "reddit.com is already blocked")
}

func TestAdd_InvalidDomain(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{}}}
	b, buf := newCmd(f)

	err := b.Add(context.Background(), SitesInput{Sites: []string{"example.com", "localhost", "other.com"}})
	assert.ErrorIs(t, err, domain.ErrInvalidDomain)
	assert.Contains(t, buf.String(), domain.InvalidDomainMessage)
	require.Len(t, f.saves, 1)
	assert.Equal(t, []string{"example.com"}, f.saves[0].BlockedSites)
}

func TestRemove(t *testing.T) {
	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{"reddit.com", "x.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Remove(context.Background(), SitesInput{Sites: []string{"www.reddit.com", "missing.com"}}))
	require.Len(t, f.saves, 1)
	assert.Equal(t, []string{"x.com"}, f.saves[0].BlockedSites)
	assert.Contains(t, buf.String(), "Removed reddit.com")
	assert.Contains(t, buf.String(), "missing.com is not in the block list")
}

func TestImport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts")
	require.NoError(t, os.WriteFile(path, []byte("0.0.0.0 facebook.com\n0.0.0.0 reddit.com\n127.0.0.1 localhost\n"), 0o644))

	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{"reddit.com"}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Import(context.Background(), ImportInput{Path: path}))
	require.Len(t, f.saves, 1)
	assert.Equal(t, []string{"reddit.com", "facebook.com"}, f.saves[0].BlockedSites)
	assert.Contains(t, buf.String(), "Imported 1 new sites")
}

func TestImport_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.txt")
	require.NoError(t, os.WriteFile(path, []byte("# focus\nyoutube.com\nnews.ycombinator.com\n"), 0o644))

	f := &FakeDaemon{status: domain.Status{BlockedSites: []string{}}}
	b, buf := newCmd(f)

	require.NoError(t, b.Import(context.Background(), ImportInput{Path: path, Format: "plain", Output: "json"}))
	var got struct {
		Added    []string `json:"added"`
		Rejected []string `json:"rejected"`
		Total    int      `json:"total"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, []string{"youtube.com", "news.ycombinator.com"}, got.Added)
	assert.Empty(t, got.Rejected)
	assert.Equal(t, 2, got.Total)
}

func TestImport_Errors(t *testing.T) {
	b, _ := newCmd(&FakeDaemon{})
	assert.Error(t, b.Import(context.Background(), ImportInput{Path: "x", Format: "csv"}))
	assert.Error(t, b.Import(context.Background(), ImportInput{Path: filepath.Join(t.TempDir(), "nope")}))
}

func TestRefresh(t *testing.T) {
	f := &FakeDaemon{}
	b, buf := newCmd(f)

	require.NoError(t, b.Refresh(context.Background()))
	assert.Equal(t, 1, f.focus)
	assert.Contains(t, buf.String(), "Settings reloaded")
}
