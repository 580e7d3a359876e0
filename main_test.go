package main

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/victorjacobs/go-comfoconnect/comfoconnect"
	"github.com/victorjacobs/go-comfoconnect/flow"
	"github.com/victorjacobs/go-comfoconnect/store"
	"go.uber.org/zap"
)

type scriptedPrompter struct {
	answers []string
	labels  []string
}

func (p *scriptedPrompter) Prompt(label string) (string, error) {
	p.labels = append(p.labels, label)
	if len(p.answers) == 0 {
		return "", errAborted
	}
	answer := p.answers[0]
	p.answers = p.answers[1:]
	return answer, nil
}

type memoryEntries struct {
	entries []store.Entry
}

func (m *memoryEntries) UniqueIDs(context.Context) (map[string]bool, error) {
	ids := map[string]bool{}
	for _, e := range m.entries {
		ids[e.UniqueID] = true
	}
	return ids, nil
}

func (m *memoryEntries) Add(_ context.Context, e store.Entry) (store.Entry, error) {
	e.EntryID = "entry-1"
	m.entries = append(m.entries, e)
	return e, nil
}

type pinSession struct {
	pin        uint32
	registered bool
}

func (s *pinSession) Connect(context.Context, uuid.UUID) error {
	return nil
}

func (s *pinSession) CmdStartSession(context.Context, bool) (comfoconnect.StartSessionConfirm, error) {
	if !s.registered {
		return comfoconnect.StartSessionConfirm{}, &comfoconnect.ResultError{Operation: comfoconnect.OperationStartSessionRequest, Result: comfoconnect.ResultNotAllowed}
	}
	return comfoconnect.StartSessionConfirm{}, nil
}

func (s *pinSession) CmdRegisterApp(_ context.Context, _ uuid.UUID, _ string, pin uint32) error {
	if pin != s.pin {
		return &comfoconnect.ResultError{Operation: comfoconnect.OperationRegisterAppRequest, Result: comfoconnect.ResultNotAllowed}
	}
	s.registered = true
	return nil
}

func (s *pinSession) Disconnect(context.Context) error {
	return nil
}

var testBridge = comfoconnect.DiscoveredBridge{Host: "192.168.1.50", UUID: uuid.MustParse("00000000-0000-0000-0000-0000000000aa")}

func newTestWizard(answers ...string) (*wizard, *scriptedPrompter, *memoryEntries, *bytes.Buffer) {
	entries := &memoryEntries{}
	session := &pinSession{pin: 1234}
	f := flow.New(flow.Options{
		Entries: entries,
		Discover: func(_ context.Context, host string) ([]comfoconnect.DiscoveredBridge, error) {
			if host == "" || host == testBridge.Host {
				return []comfoconnect.DiscoveredBridge{testBridge}, nil
			}
			return nil, nil
		},
		NewSession: func(string, uuid.UUID) flow.Session {
			return session
		},
	})

	p := &scriptedPrompter{answers: answers}
	out := &bytes.Buffer{}
	return &wizard{flow: f, prompt: p, out: out}, p, entries, out
}

func TestWizardPicksDiscoveredBridge(t *testing.T) {
	ctx := context.Background()
	w, p, entries, out := newTestWizard("7", "1", "abc", "1234")

	res, err := w.flow.User(ctx, nil)
	require.NoError(t, err)

	res, err = w.run(ctx, res)
	require.NoError(t, err)

	assert.Equal(t, flow.ResultCreateEntry, res.Type)
	assert.Equal(t, "entry-1", res.EntryID)
	require.Len(t, entries.entries, 1)
	assert.Equal(t, "192.168.1.50", entries.entries[0].Host)
	assert.Equal(t, []string{"Gateway: ", "Gateway: ", "PIN: ", "PIN: "}, p.labels)
	assert.Contains(t, out.String(), " 1) 192.168.1.50 (000000000000000000000000000000aa)")
	assert.Contains(t, out.String(), " 2) Manually add a ComfoConnect LAN C Bridge")
	assert.Contains(t, out.String(), "Pick a number between 1 and 2")
	assert.Contains(t, out.String(), errorMessages[flow.ErrorInvalidPinRange])
}

func TestWizardManualHost(t *testing.T) {
	ctx := context.Background()
	w, _, entries, out := newTestWizard(flow.ManualBridgeID, "192.168.1.99", "192.168.1.50", "1234")

	res, err := w.flow.User(ctx, nil)
	require.NoError(t, err)

	res, err = w.run(ctx, res)
	require.NoError(t, err)

	assert.Equal(t, flow.ResultCreateEntry, res.Type)
	assert.Len(t, entries.entries, 1)
	assert.Contains(t, out.String(), errorMessages[flow.ErrorInvalidHost])
}

func TestWizardAborted(t *testing.T) {
	ctx := context.Background()
	w, _, entries, _ := newTestWizard()

	res, err := w.flow.Manual(ctx, nil)
	require.NoError(t, err)

	_, err = w.run(ctx, res)
	assert.ErrorIs(t, err, errAborted)
	assert.Empty(t, entries.entries)
}

func TestLoopSafely(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		loopSafely(ctx, zap.NewNop().Sugar(), func(context.Context) error {
			if calls.Add(1) == 1 {
				panic("boom")
			}
			cancel()
			return errors.New("stopped")
		})
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loopSafely did not stop")
	}
	assert.Equal(t, int32(2), calls.Load())
}

func TestDaemonClient(t *testing.T) {
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		if r.URL.Path == "/entries/missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":"entry not found"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	ctx := context.Background()
	d := newDaemonClient(srv.URL + "/")

	require.NoError(t, d.reload(ctx, "e1"))
	require.NoError(t, d.remove(ctx, "e1"))

	err := d.remove(ctx, "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entry not found")
	assert.NotErrorIs(t, err, errDaemonUnreachable)

	assert.Equal(t, []string{"POST /entries/e1/reload", "DELETE /entries/e1", "DELETE /entries/missing"}, requests)

	srv.Close()
	assert.ErrorIs(t, d.reload(ctx, "e1"), errDaemonUnreachable)
}

func TestLookupEntry(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "comfoconnect.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	added, err := st.Add(ctx, store.Entry{
		UniqueID:  "000000000000000000000000000000aa",
		Title:     "192.168.1.50",
		Host:      "192.168.1.50",
		UUID:      "000000000000000000000000000000aa",
		LocalUUID: "00000000000000000000000000000001",
		Source:    store.SourceUser,
	})
	require.NoError(t, err)

	for _, ref := range []string{added.EntryID, "000000000000000000000000000000AA", "00000000-0000-0000-0000-0000000000aa"} {
		e, err := lookupEntry(ctx, st, ref)
		require.NoError(t, err, ref)
		assert.Equal(t, added.EntryID, e.EntryID)
	}

	_, err = lookupEntry(ctx, st, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
