// Package checkpoint persists scroll progress in Redis so that an interrupted
// run can continue from its last continuation token.
//
// A checkpoint is written after every page that scheduled a successor and is
// removed when the run ends. It expires together with the server-side scroll
// context: once the keep-alive elapsed the token is useless, and so is the
// checkpoint.
//
// # Basic Usage
//
//	store := checkpoint.NewStore(redisClient)
//	runID := checkpoint.NewRunID()
//
//	cfg := scroll.DefaultConfig()
//	cfg.RunID = runID
//	cfg.OnPage = store.Recorder(ctx, checkpoint.Checkpoint{RunID: runID}, 30*time.Second)
//
// # Resuming
//
//	cp, err := store.Get(ctx, checkpoint.Key{RunID: runID})
//	if errors.Is(err, checkpoint.ErrNotFound) {
//		// Finished, never started, or the scroll context expired.
//	}
//	cfg.StartToken = cp.Token
//	cfg.OnPage = store.Recorder(ctx, *cp, 30*time.Second)
//
// Hits of the page that was in flight when the previous process stopped can
// be lost: the server-side scroll context may have advanced past them.
//
// # Metrics
//
//   - es_checkpoint_saves_total - Checkpoints saved
//   - es_checkpoint_loads_total{result} - Lookups by result (hit, miss)
//   - es_checkpoint_errors_total{operation} - Operation errors
package checkpoint
