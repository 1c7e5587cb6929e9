// Package net implements the Luanti (Minetest) client network framing.
//
// This includes a message (a single command payload read or written by the
// client), datagram framing for the reliable-UDP layer, and builders for
// every command the client sends.
package net
