// Package batch splits an unbounded stream of document mutations across as
// many database batch handles as the driver's per-batch cap requires, and
// commits all of them with a single call.
//
// Each handle is committed atomically by the driver. The set of handles is
// not: when one handle fails the others may already be applied, and the
// returned *CommitError says which handles failed.
//
//	agg, err := batch.New(conn, batch.WithLimit(200))
//	if err != nil {
//		return err
//	}
//	for _, u := range users {
//		agg.Set(domain.Ref("users", u.ID), u.Doc())
//	}
//	if _, err := agg.Commit(ctx); err != nil {
//		return err
//	}
package batch
