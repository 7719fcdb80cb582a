package actors

import (
	"context"
	"math/rand"
	"time"

	"leadflow/ledger"
	"leadflow/notify"
)

// Triggerer is the slice of the engine the trigger actors drive.
type Triggerer interface {
	Trigger(ctx context.Context, p notify.TriggerParams) (notify.Result, error)
}

// ReminderTrigger fires overlapping reminder runs for one provider. Losing
// the provider lock or hitting a gate is an expected outcome under
// contention; transient infrastructure errors are retried because chaos may
// kill the backend mid-run.
func ReminderTrigger(ctx context.Context, eng Triggerer, slug string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := eng.Trigger(ctx, notify.TriggerParams{ProviderSlug: slug, Kind: notify.KindReminder})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(10+rand.Intn(40)) * time.Millisecond)
	}
}

// ReactivationTrigger fires overlapping reactivation runs for one provider.
func ReactivationTrigger(ctx context.Context, eng Triggerer, slug string, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := eng.Trigger(ctx, notify.TriggerParams{ProviderSlug: slug, Kind: notify.KindReactivation})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(20+rand.Intn(60)) * time.Millisecond)
	}
}

// TestTrigger exercises the debug bypass path concurrently with real runs,
// alternating kinds. Test sends must never consume the daily budget, the
// dedup state, or a lead's cool-off, which the oracles verify from the
// outside.
func TestTrigger(ctx context.Context, eng Triggerer, slug, leadID string, stop <-chan struct{}) error {
	kinds := []notify.Kind{notify.KindReminder, notify.KindReactivation}
	for i := 0; ; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		_, err := eng.Trigger(ctx, notify.TriggerParams{
			ProviderSlug: slug,
			Kind:         kinds[i%len(kinds)],
			Mode:         notify.ModeTest,
			TestLeadID:   leadID,
		})
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(150+rand.Intn(150)) * time.Millisecond)
	}
}

// SignalProducer appends booking signals with near-future slots so the
// reminder miner always has fresh candidates racing the dedup filter.
func SignalProducer(ctx context.Context, repo *ledger.PGRepository, providerID string, leadIDs []string, windowHours int, stop <-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		leadID := leadIDs[rand.Intn(len(leadIDs))]
		slot := time.Now().Add(time.Duration(1+rand.Intn(windowHours*60)) * time.Minute)
		ms := slot.UnixMilli()
		payload, err := ledger.EncodeSignal(ledger.Signal{SlotMS: &ms})
		if err != nil {
			return err
		}
		appendErr := repo.Append(ctx, ledger.Event{
			Name:       ledger.EventBookingConfirmed,
			ProviderID: providerID,
			LeadID:     &leadID,
			Payload:    payload,
		})
		if appendErr != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		time.Sleep(time.Duration(15+rand.Intn(35)) * time.Millisecond)
	}
}
