// Package recurrence decides whether a calendar date is an occurrence of a
// notification's recurrence rule.
//
// Rules are stored as JSON objects discriminated by "kind":
//
//	{"kind":"weekly","weekdays":["MON","WED"]}
//	{"kind":"monthly","days":[1,15,-1]}
//	{"kind":"interval","every":3,"anchor":"2024-01-01"}
//	{"kind":"cron","expr":"0 9 * * MON-FRI"}
//
// A few shorthand strings are accepted as well: "daily", "weekdays" and
// "every <weekday>".
//
// Evaluation fails closed. IsOccurrence reports false for any rule it cannot
// parse, so malformed stored data never generates work. Validate is the
// authoring-time check that surfaces the reason instead.
package recurrence
