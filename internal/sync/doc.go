// Package sync implements the synchronization engine between the local
// task store and the remote task service.
//
// Overview
//
// The engine reconciles two stores that can each be mutated while the
// other is unreachable. It operates in two modes:
//
//	Batch Reconciliation   full two-way pass over an account's tasks,
//	                       run on demand ("tm sync")
//	Single-Task Propagation  immediate push of one local mutation,
//	                       run by the auto-save hook after add/update/rm
//
// Both modes share the same building blocks:
//
//	Local Store + Sync Metadata      Remote Client
//	          ↓                           ↓
//	        snapshots L, R and metadata M
//	          ↓
//	     Conflict Resolver  (classify: unchanged / local-ahead /
//	          ↓              remote-ahead / conflict / deleted-one-side)
//	       Engine applies the winning action to both sides
//	          ↓
//	     Identity Reconciler  (first push only: local id → remote id)
//
// Change detection compares fingerprints of the current snapshots
// against the fingerprints recorded at the last successful sync. A task
// whose both sides still match its metadata is unchanged; a side that
// diverged alone wins; two diverged sides are a conflict, resolved by
// deterministic last-writer-wins on modification time with ties going
// to the remote copy. Deletions win over older edits.
//
// Running a batch twice with no intervening mutations is a no-op on the
// second run. Creating a task with auto-save enabled and then running a
// batch never creates a duplicate remote task: the identity reconciler
// rewrites the local identifier to the remote canonical one atomically,
// so the batch finds a reconciled task, not an unsynced one.
//
// Concurrency
//
// One engine activity runs per account at a time, serialized by an
// advisory per-account lock. Different accounts synchronize
// concurrently and share no state.
package sync
