// Package ethercat is a pure-Go implementation of the core of an EtherCAT
// master: cyclic process-data exchange, the CoE mailbox/SDO state machines,
// the AL-state ladder with slave recovery, a distributed-clocks discipline
// loop, and topology reconciliation. It composes the leaf packages under
// this module (frame, coe, transport, alstate, recovery, dc, topology,
// diagnostics) into one orchestrator, the way the teacher's canopen package
// composes bus, node and gateway packages around a shared Bus interface.
package ethercat
