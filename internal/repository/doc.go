// Package repository defines the data access interfaces for hwrelay.
//
// The relay keeps no state that must survive a restart. The only persisted
// data is the optional activity journal: liveness transitions, command
// outcomes and frames read from the hardware, kept for diagnosing a device
// after the fact. The implementation lives in the sqlite subpackage.
package repository
