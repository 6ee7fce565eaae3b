// Package localshare is the facade for the peer-to-peer file-transfer
// engine: a Config seam for an embedding CLI/GUI, and a Node that wires
// discovery to Upload/Download transfers. The transfer engine itself
// lives in payload, wire, transfer, notify, and discovery.
package localshare
