package service

import (
	"polyfolio/internal/domain/model"
)

// Reconcile merges position records from several overlapping sources into one
// duplicate-free collection. Sources are processed in order; within a source,
// records in order. For two records with the same canonical key the one with
// the later effective time wins, and on equal times the one processed last
// wins, so fresher sources should be passed after staler ones.
func Reconcile(sources ...[]model.PositionRecord) []model.PositionRecord {
	acc := make(map[string]model.PositionRecord)
	order := make([]string, 0)

	for _, src := range sources {
		for _, rec := range src {
			key := rec.CanonicalKey()
			prev, ok := acc[key]
			if !ok {
				acc[key] = rec
				order = append(order, key)
				continue
			}
			if !rec.EffectiveTime().Before(prev.EffectiveTime()) {
				acc[key] = rec
			}
		}
	}

	out := make([]model.PositionRecord, 0, len(order))
	for _, key := range order {
		out = append(out, acc[key])
	}
	return out
}

// Dedupe collapses duplicates within a single list using the same rules
// as Reconcile.
func Dedupe(records []model.PositionRecord) []model.PositionRecord {
	return Reconcile(records)
}

// Settle tags positions on closed markets with their terminal status.
// A position that never filled (zero volume, zero entry price) becomes
// not_filled. When the market has a resolved outcome the position becomes
// won or lost depending on whether it holds that outcome. Positions on
// open markets pass through unchanged.
func Settle(records []model.PositionRecord) []model.PositionRecord {
	out := make([]model.PositionRecord, len(records))
	for i, rec := range records {
		out[i] = settleOne(rec)
	}
	return out
}

func settleOne(rec model.PositionRecord) model.PositionRecord {
	if !rec.Market.Closed() {
		return rec
	}
	if rec.Volume.IsZero() && rec.EntryPrice.IsZero() {
		rec.Status = model.StatusNotFilled
		return rec
	}
	winner, ok := rec.Market.ResolvedOutcome()
	if !ok {
		return rec
	}
	if rec.OutcomeIdentifier() == winner.ID {
		rec.Status = model.StatusWon
	} else {
		rec.Status = model.StatusLost
	}
	return rec
}
