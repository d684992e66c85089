package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/custodia-labs/teamsenum/internal/core/domain"
	"github.com/custodia-labs/teamsenum/internal/core/ports/driven"
	"github.com/custodia-labs/teamsenum/internal/logger"
	"github.com/custodia-labs/teamsenum/internal/ooo"
)

// EnumeratorConfig wires an Enumerator. Store and Writer are optional.
type EnumeratorConfig struct {
	Probers  map[domain.AccountType]driven.Prober
	Presence driven.PresenceSource
	Store    driven.PresenceStore
	Writer   driven.ResultWriter
	Reporter driven.Reporter

	// LookupPresence enables the presence lookup for found email targets.
	LookupPresence bool
	// Session tags stored presence rows.
	Session string
}

// Stats counts what a run produced.
type Stats struct {
	Processed int64
	Found     int64
	Failed    int64
}

// Enumerator runs the per-target pipeline: probe, presence, OOO cleanup,
// persistence, console line and result record.
type Enumerator struct {
	config EnumeratorConfig

	processed atomic.Int64
	found     atomic.Int64
	failed    atomic.Int64
}

// NewEnumerator creates an enumerator.
func NewEnumerator(cfg EnumeratorConfig) *Enumerator {
	cfg.Session = domain.NormalizeSession(cfg.Session)
	return &Enumerator{config: cfg}
}

// Stats returns the counters accumulated so far.
func (e *Enumerator) Stats() Stats {
	return Stats{
		Processed: e.processed.Load(),
		Found:     e.found.Load(),
		Failed:    e.failed.Load(),
	}
}

// Enumerate processes one target. It emits exactly one console line and,
// when a writer is configured, exactly one result record. Only run-fatal
// errors are returned.
func (e *Enumerator) Enumerate(ctx context.Context, target domain.Target) error {
	var (
		out *domain.ProbeOutcome
		err error
	)
	logger.Debug("enumerator: %s target %s", target.Kind, target.Identifier)
	if target.Kind == domain.TargetGUID {
		out = e.enumerateGUID(ctx, target)
	} else {
		out, err = e.enumerateEmail(ctx, target)
		if err != nil {
			return err
		}
	}

	e.processed.Add(1)
	if out.Exists {
		e.found.Add(1)
	}
	if out.Err != nil && !errors.Is(out.Err, domain.ErrNotFound) {
		e.failed.Add(1)
	}

	e.report(out)
	if e.config.Writer != nil {
		if err := e.config.Writer.Write(out.Record()); err != nil {
			logger.Error("enumerator: failed to write result for %s: %v", target.Identifier, err)
		}
	}
	return nil
}

func (e *Enumerator) enumerateEmail(ctx context.Context, target domain.Target) (*domain.ProbeOutcome, error) {
	prober, ok := e.config.Probers[target.AccountType]
	if !ok {
		return &domain.ProbeOutcome{
			Target: target,
			Err:    fmt.Errorf("no prober for account type %q", target.AccountType),
		}, nil
	}

	out, err := prober.Probe(ctx, target)
	if err != nil {
		return nil, err
	}

	if out.UserInfoPayload != "" && e.config.Store != nil {
		if n, err := e.config.Store.LogUserInfo(ctx, out.UserInfoPayload); err != nil {
			logger.Warn("enumerator: failed to log user info for %s: %v", target.Identifier, err)
		} else {
			logger.Debug("enumerator: %d user info rows stored for %s", n, target.Identifier)
		}
	}

	if out.Exists && e.config.LookupPresence && out.MRI != "" {
		rec, err := e.lookupPresence(ctx, out.MRI)
		if err != nil {
			logger.Warn("enumerator: presence lookup for %s failed: %v", target.Identifier, err)
		} else {
			out.Presence = rec
		}
	}

	return out, nil
}

func (e *Enumerator) enumerateGUID(ctx context.Context, target domain.Target) *domain.ProbeOutcome {
	out := &domain.ProbeOutcome{Target: target}

	rec, err := e.lookupPresence(ctx, target.Identifier)
	if err != nil {
		out.Err = err
		return out
	}
	out.Exists = true
	out.MRI = rec.MRI
	out.Presence = rec
	return out
}

// lookupPresence fetches presence for id, cleans any OOO note and persists
// both. Store failures are logged and never fail the lookup.
func (e *Enumerator) lookupPresence(ctx context.Context, id string) (*domain.PresenceRecord, error) {
	if e.config.Presence == nil {
		return nil, errors.New("presence lookup is not configured")
	}

	rec, err := e.config.Presence.GetPresence(ctx, id)
	if err != nil {
		return nil, err
	}

	if rec.RawOOO != "" {
		msg := ooo.Process(rec.RawOOO)
		rec.OOONote = &msg
		logger.Debug("enumerator: ooo for %s md5=%s length=%d truncated=%t",
			rec.GUID, msg.ContentHash, msg.Length, msg.Truncated)

		if e.config.Store != nil {
			if _, err := e.config.Store.LogOOO(ctx, rec.GUID, msg); err != nil {
				logger.Warn("enumerator: failed to log ooo for %s: %v", rec.GUID, err)
			}
		}
	}

	if e.config.Store != nil {
		if err := e.config.Store.LogPresence(ctx, rec, rec.GUID, e.config.Session); err != nil {
			logger.Warn("enumerator: failed to log presence for %s: %v", rec.GUID, err)
		}
	}

	return rec, nil
}

// report prints the single console line for out.
func (e *Enumerator) report(out *domain.ProbeOutcome) {
	r := e.config.Reporter
	if r == nil {
		return
	}

	if out.Target.Kind == domain.TargetGUID {
		if out.Presence == nil {
			r.Warn("%s - %v", out.Target.Identifier, out.Err)
			return
		}
		p := out.Presence
		r.Success("%s (%s, %s, %d, %d, %d)",
			p.GUID, p.Availability, p.DeviceType, p.OOOEnabled(), p.UnixTime(), p.Bucket.QuarterHour)
		return
	}

	if !out.Exists {
		msg := out.Diagnostic()
		if msg == "" && out.Err != nil {
			msg = out.Err.Error()
		}
		r.Warn("%s - %s", out.Target.Identifier, msg)
		return
	}

	var b strings.Builder
	b.WriteString(out.Target.Identifier)
	b.WriteString(" - ")
	if out.DisplayName != "" {
		b.WriteString(out.DisplayName)
	} else {
		b.WriteString(out.Diagnostic())
	}
	if p := out.Presence; p != nil {
		fmt.Fprintf(&b, " (%s, %s)", p.Availability, p.DeviceType)
	}
	r.Success("%s", b.String())
}
