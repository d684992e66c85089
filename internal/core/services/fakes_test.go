package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
)

type fakeProber struct {
	mu      sync.Mutex
	calls   []string
	outcome func(target domain.Target) (*domain.ProbeOutcome, error)
}

func (f *fakeProber) Probe(_ context.Context, target domain.Target) (*domain.ProbeOutcome, error) {
	f.mu.Lock()
	f.calls = append(f.calls, target.Identifier)
	f.mu.Unlock()
	return f.outcome(target)
}

type fakePresence struct {
	mu    sync.Mutex
	calls []string
	rec   func(id string) (*domain.PresenceRecord, error)
}

func (f *fakePresence) GetPresence(_ context.Context, id string) (*domain.PresenceRecord, error) {
	f.mu.Lock()
	f.calls = append(f.calls, id)
	f.mu.Unlock()
	return f.rec(id)
}

func (f *fakePresence) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type fakeStore struct {
	mu       sync.Mutex
	presence []string
	ooo      []domain.OOOMessage
	userInfo []string
	err      error
}

func (f *fakeStore) LogPresence(_ context.Context, _ *domain.PresenceRecord, guid, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.presence = append(f.presence, guid)
	return nil
}

func (f *fakeStore) LogOOO(_ context.Context, _ string, msg domain.OOOMessage) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.ooo = append(f.ooo, msg)
	return true, nil
}

func (f *fakeStore) LogUserInfo(_ context.Context, payload string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.userInfo = append(f.userInfo, payload)
	return 1, nil
}

func (f *fakeStore) Close() error { return nil }

type fakeWriter struct {
	mu      sync.Mutex
	records []domain.ResultRecord
}

func (f *fakeWriter) Write(rec domain.ResultRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, rec)
	return nil
}

type line struct {
	level string
	text  string
}

type fakeReporter struct {
	mu    sync.Mutex
	lines []line
}

func (f *fakeReporter) add(level, format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lines = append(f.lines, line{level: level, text: fmt.Sprintf(format, args...)})
}

func (f *fakeReporter) Success(format string, args ...any) { f.add("success", format, args...) }
func (f *fakeReporter) Warn(format string, args ...any)    { f.add("warn", format, args...) }
func (f *fakeReporter) Info(format string, args ...any)    { f.add("info", format, args...) }
