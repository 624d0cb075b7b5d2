// Package countries translates the native country codings used by the raw
// sources (ISO alpha-2, ISO alpha-3, legacy COW-style numeric codes, and
// free-text names) into the canonical numeric country code that keys the
// panel.
//
// Resolution consults a per-system manual override table first and falls
// back to the automatic reference tables built from the embedded state list
// and ISO concordances. An override can map a native code to a canonical
// code, mark it as deliberately unmapped (dependent territories, aggregate
// regions, discontinued codes), or route it to a historical lineage whose
// final code depends on the row's own year (the Yugoslavia/Serbia/Montenegro
// family resolves to 345, 340 or 341 depending on name and period).
//
// All tables live under tables/ and are embedded at build time; extending
// coverage for a new source means adding rows there, not code.
package countries
