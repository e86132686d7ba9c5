package checkpoint

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/nvandessel/plexsim/internal/constants"
)

// FormatVersion is the version written into every header.
const FormatVersion = 1

// Header is the plain-text first line of a checkpoint file.
type Header struct {
	Version       int       `json:"version"`
	RunID         uuid.UUID `json:"run_id"`
	CreatedAt     time.Time `json:"created_at"`
	Checksum      string    `json:"checksum"`
	Time          float64   `json:"time"`
	SpeciesCount  int       `json:"species_count"`
	ReactionCount int       `json:"reaction_count"`
	Reason        string    `json:"reason,omitempty"`
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Write stores st at path: header line + gzip-compressed payload.
func Write(path string, st *State) error {
	payload, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshaling payload: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing payload: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:       FormatVersion,
		RunID:         st.RunID,
		CreatedAt:     st.CreatedAt,
		Checksum:      checksum(compressed.Bytes()),
		Time:          st.Time,
		SpeciesCount:  len(st.Network.Species),
		ReactionCount: len(st.Network.Reactions),
		Reason:        st.Reason,
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	w.Write(headerBytes)
	w.WriteByte('\n')
	w.Write(compressed.Bytes())
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing checkpoint: %w", err)
	}
	return f.Close()
}

// open reads the header of path and returns a reader positioned at the payload.
func open(path string) (*Header, *bufio.Reader, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("opening file: %w", err)
	}
	reader := bufio.NewReader(f)
	headerLine, err := reader.ReadBytes('\n')
	if err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(headerLine), &header); err != nil {
		f.Close()
		return nil, nil, nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		f.Close()
		return nil, nil, nil, fmt.Errorf("unsupported checkpoint version %d", header.Version)
	}
	return &header, reader, f, nil
}

// readVerified returns the compressed payload after checking its checksum.
func readVerified(path string) (*Header, []byte, error) {
	header, reader, f, err := open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed payload: %w", err)
	}
	if actual := checksum(compressed); actual != header.Checksum {
		return nil, nil, fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return header, compressed, nil
}

// Read loads the checkpoint at path, verifying its checksum.
func Read(path string) (*State, error) {
	_, compressed, err := readVerified(path)
	if err != nil {
		return nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	limit := int64(constants.MaxCheckpointDecompressedSize)
	decompressed, err := io.ReadAll(io.LimitReader(gzr, limit+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing payload: %w", err)
	}
	if int64(len(decompressed)) > limit {
		return nil, fmt.Errorf("decompressed payload exceeds maximum size of %d bytes", limit)
	}

	var st State
	if err := json.Unmarshal(decompressed, &st); err != nil {
		return nil, fmt.Errorf("parsing checkpoint data: %w", err)
	}
	return &st, nil
}

// ReadHeader reads only the header line of path.
func ReadHeader(path string) (*Header, error) {
	header, _, f, err := open(path)
	if err != nil {
		return nil, err
	}
	f.Close()
	return header, nil
}

// Verify checks the integrity of the checkpoint at path without decompressing it.
func Verify(path string) error {
	_, _, err := readVerified(path)
	return err
}
