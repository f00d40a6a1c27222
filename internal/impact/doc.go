// Package impact provides the reverse index from code elements to the tests
// that exercise them.
//
// Facts come from several sources with different trust (static parsing,
// runtime traces, coverage, AI inference, manual annotation). Each
// (test, element, source) triple is kept as its own fact; recording the same
// triple again only ever raises its confidence. Callers pick a confidence
// threshold per query.
//
// Basic usage:
//
//	idx := impact.NewIndex()
//	_ = idx.Record("test_login", "LoginPage", impact.SourceStaticAST, 0.85, time.Now())
//	_ = idx.Record("LoginIT#testLogin", "com.example.pages.LoginPage", impact.SourceCoverage, 0.95, time.Now())
//
//	// both tests: the short name matches the qualified one
//	tests := idx.ImpactedBy("LoginPage", 0.5)
//
// Merging is max-based, so indexes built by parallel producers can be merged
// in any order with the same result. See Collect.
package impact
