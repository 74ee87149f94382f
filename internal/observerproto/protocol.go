// Package observerproto defines the JSON messages exchanged with terrain
// observers (renderers) over the observer websocket.
package observerproto

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// Version is the observer protocol version.
const Version = "0.1"

const (
	TypeSubscribe       = "SUBSCRIBE"
	TypeTrack           = "TRACK"
	TypeTileActivated   = "TILE_ACTIVATED"
	TypeTileDeactivated = "TILE_DEACTIVATED"
)

// HeightsEncoding means: base64 of little-endian float32 heights, z-major
// (for z in 0..res-1, for x in 0..res-1, x fastest).
const HeightsEncoding = "F32LE_ZX"

// Client -> Server. First message on the observer WS connection, and can be
// re-sent to update settings.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`

	// Heights asks for height data in TILE_ACTIVATED. Without it only the
	// position and digest are sent.
	Heights bool `json:"heights"`
}

// Client -> Server. Moves the tracked position, in world units.
type TrackMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	X               float64 `json:"x"`
	Z               float64 `json:"z"`
}

// HTTP response for GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string      `json:"protocol_version"`
	WorldID         string      `json:"world_id"`
	WorldParams     WorldParams `json:"world_params"`
	Biomes          []string    `json:"biomes"`
	Details         []string    `json:"details"`
	Tracked         [2]float64  `json:"tracked"`
}

type WorldParams struct {
	TickRateHz     int     `json:"tick_rate_hz"`
	Seed           int64   `json:"seed"`
	TileLength     float64 `json:"tile_length"`
	TileResolution int     `json:"tile_resolution"`
	Radius         int     `json:"radius"`
}

// Server -> Client. A tile entered the active set.
type TileActivatedMsg struct {
	Type            string  `json:"type"`
	ProtocolVersion string  `json:"protocol_version"`
	X               int     `json:"x"`
	Z               int     `json:"z"`
	Resolution      int     `json:"resolution"`
	Length          float64 `json:"length"`
	Digest          string  `json:"digest"`
	Encoding        string  `json:"encoding,omitempty"`
	Data            string  `json:"data,omitempty"`
}

// Server -> Client. A tile left the active set; the client should drop it.
type TileDeactivatedMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	X               int    `json:"x"`
	Z               int    `json:"z"`
}

// Envelope is decoded first to dispatch on Type.
type Envelope struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
}

func EncodeHeights(h []float64) string {
	buf := make([]byte, 4*len(h))
	for i, v := range h {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(float32(v)))
	}
	return base64.StdEncoding.EncodeToString(buf)
}

func DecodeHeights(s string) ([]float64, error) {
	buf, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(buf)%4 != 0 {
		return nil, fmt.Errorf("heights: %d bytes is not a multiple of 4", len(buf))
	}
	out := make([]float64, len(buf)/4)
	for i := range out {
		out[i] = float64(math.Float32frombits(binary.LittleEndian.Uint32(buf[4*i:])))
	}
	return out, nil
}
