// Package goobd talks OBD-II diagnostics over CAN. The root package carries
// the frame transport layer: a blocking Send/Receive interface, a named
// backend registry (J2534 pass-thru, SocketCAN, SLCAN serial, an in-memory
// virtual bus) and the shared configuration. The protocol layers live in
// pkg/isotp (ISO 15765-2 segmentation and reassembly) and pkg/obd2
// (requests, PID decode, diagnostic sessions).
package goobd
