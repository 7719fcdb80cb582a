package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"leadflow/ledger"
	"leadflow/locale"
)

type fakeAppender struct {
	appended []ledger.Event
	errByKey map[string]error
}

func (f *fakeAppender) Append(ctx context.Context, e ledger.Event) error {
	sig, err := ledger.DecodeSignal(e.Payload)
	if err != nil {
		return err
	}
	if err, ok := f.errByKey[sig.DedupKey]; ok {
		return err
	}
	f.appended = append(f.appended, e)
	return nil
}

type fixedLang struct{ lang string }

func (f fixedLang) Resolve(ctx context.Context, req locale.Request) string { return f.lang }

func TestDispatchAppendsOnePerCandidate(t *testing.T) {
	appender := &fakeAppender{}
	d := NewDispatcher(appender, fixedLang{"en"}, zerolog.Nop())

	slot := time.Now().Add(2 * time.Hour)
	res := d.Dispatch(context.Background(), DispatchParams{
		ProviderID: "p1",
		Kind:       KindReminder,
		Mode:       ModeNormal,
		Admitted: []Candidate{
			reminderCandidate("L1", slot),
			reminderCandidate("L2", slot),
		},
	})

	if res.Sent != 2 || res.Failed != 0 {
		t.Fatalf("sent = %d, failed = %d, want 2/0", res.Sent, res.Failed)
	}
	if len(appender.appended) != 2 {
		t.Fatalf("appended = %d events, want 2", len(appender.appended))
	}
	for _, e := range appender.appended {
		if e.Name != ledger.EventReminderSent {
			t.Errorf("event name = %q", e.Name)
		}
		sig, err := ledger.DecodeSignal(e.Payload)
		if err != nil {
			t.Fatalf("decode sent payload: %v", err)
		}
		if sig.DedupKey == "" {
			t.Error("sent event missing dedup key")
		}
		if sig.TemplateID == "" || sig.Channel == "" || sig.Lang == "" {
			t.Errorf("sent payload incomplete: %+v", sig)
		}
		if sig.Mode != "" {
			t.Errorf("normal send tagged with mode %q", sig.Mode)
		}
	}
}

func TestDispatchContinuesPastFailures(t *testing.T) {
	slot := time.UnixMilli(1712000000000)
	failing := ledger.ReminderKey(ptr("L2"), slot).String()
	appender := &fakeAppender{errByKey: map[string]error{failing: errors.New("write refused")}}
	d := NewDispatcher(appender, fixedLang{"en"}, zerolog.Nop())

	res := d.Dispatch(context.Background(), DispatchParams{
		ProviderID: "p1",
		Kind:       KindReminder,
		Admitted: []Candidate{
			reminderCandidate("L1", slot),
			reminderCandidate("L2", slot),
			reminderCandidate("L3", slot),
		},
	})

	if res.Sent != 2 {
		t.Errorf("sent = %d, want 2", res.Sent)
	}
	if res.Failed != 1 {
		t.Errorf("failed = %d, want 1", res.Failed)
	}
}

func TestDispatchCountsDuplicatesSeparately(t *testing.T) {
	slot := time.UnixMilli(1712000000000)
	dup := ledger.ReminderKey(ptr("L1"), slot).String()
	appender := &fakeAppender{errByKey: map[string]error{dup: ledger.ErrDuplicateSend}}
	d := NewDispatcher(appender, fixedLang{"en"}, zerolog.Nop())

	res := d.Dispatch(context.Background(), DispatchParams{
		ProviderID: "p1",
		Kind:       KindReminder,
		Admitted:   []Candidate{reminderCandidate("L1", slot)},
	})

	if res.Sent != 0 || res.Failed != 0 || res.Duplicates != 1 {
		t.Fatalf("sent/failed/duplicates = %d/%d/%d, want 0/0/1", res.Sent, res.Failed, res.Duplicates)
	}
}

func TestDispatchTagsTestMode(t *testing.T) {
	appender := &fakeAppender{}
	d := NewDispatcher(appender, fixedLang{"en"}, zerolog.Nop())

	lead := "abc"
	d.Dispatch(context.Background(), DispatchParams{
		ProviderID: "p1",
		Kind:       KindReactivation,
		Mode:       ModeTest,
		Admitted:   []Candidate{{LeadID: &lead, Key: ledger.ReactivationKey(&lead)}},
	})

	if len(appender.appended) != 1 {
		t.Fatalf("appended = %d events, want 1", len(appender.appended))
	}
	sig, err := ledger.DecodeSignal(appender.appended[0].Payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sig.Mode != ledger.ModeTest {
		t.Errorf("mode = %q, want %q", sig.Mode, ledger.ModeTest)
	}
	if appender.appended[0].Name != ledger.EventReactivationSent {
		t.Errorf("event name = %q", appender.appended[0].Name)
	}
}
