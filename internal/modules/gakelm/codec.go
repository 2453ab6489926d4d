package gakelm

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/golang/snappy"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/aqicast/internal/modules/kelm"
)

// SchemaVersion is the model document version written by Encode
const SchemaVersion = 1

var magic = []byte("AQKM")

var (
	ErrVersionMismatch = errors.New("model schema version mismatch")
	ErrInvalidBlob     = errors.New("invalid model blob")
)

type modelDocument struct {
	SchemaVersion int `msgpack:"schema_version"`

	Kernel string      `msgpack:"kernel"`
	Degree int         `msgpack:"degree"`
	C      float64     `msgpack:"c"`
	Gamma  float64     `msgpack:"gamma"`
	XTrain [][]float64 `msgpack:"x_train"`
	Beta   []float64   `msgpack:"beta"`

	FeatureMean  []float64 `msgpack:"feature_mean"`
	FeatureScale []float64 `msgpack:"feature_scale"`
	TargetMean   float64   `msgpack:"target_mean"`
	TargetScale  float64   `msgpack:"target_scale"`
	ConfidenceK  float64   `msgpack:"confidence_k"`

	Lags         []int         `msgpack:"lags"`
	FeatureNames []string      `msgpack:"feature_names"`
	Metrics      Metrics       `msgpack:"metrics"`
	Search       SearchSummary `msgpack:"search"`
	Samples      int           `msgpack:"samples"`

	Version   int    `msgpack:"version"`
	RunID     string `msgpack:"run_id"`
	TrainedAt int64  `msgpack:"trained_at_unix_nano"`
}

// Encode serializes a model as magic header + snappy(msgpack document).
func Encode(m *TrainedModel) ([]byte, error) {
	snap, err := m.regressor.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot regressor: %w", err)
	}

	doc := modelDocument{
		SchemaVersion: SchemaVersion,
		Kernel:        string(snap.Kernel),
		Degree:        snap.Degree,
		C:             snap.C,
		Gamma:         snap.Gamma,
		XTrain:        snap.XTrain,
		Beta:          snap.Beta,
		FeatureMean:   m.xScaler.Mean,
		FeatureScale:  m.xScaler.Scale,
		TargetMean:    m.yScaler.Mean,
		TargetScale:   m.yScaler.Scale,
		ConfidenceK:   m.confidenceK,
		Lags:          m.lags,
		FeatureNames:  m.featureNames,
		Metrics:       m.metrics,
		Search:        m.search,
		Samples:       m.samples,
		Version:       m.version,
		RunID:         m.runID,
	}
	if !m.trainedAt.IsZero() {
		doc.TrainedAt = m.trainedAt.UnixNano()
	}

	raw, err := msgpack.Marshal(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal model: %w", err)
	}

	out := make([]byte, 0, len(magic)+snappy.MaxEncodedLen(len(raw)))
	out = append(out, magic...)
	return append(out, snappy.Encode(nil, raw)...), nil
}

// Decode parses a blob written by Encode. Blobs from another schema version
// fail with ErrVersionMismatch.
func Decode(data []byte) (*TrainedModel, error) {
	if len(data) < len(magic) || !bytes.Equal(data[:len(magic)], magic) {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidBlob)
	}
	raw, err := snappy.Decode(nil, data[len(magic):])
	if err != nil {
		return nil, fmt.Errorf("%w: snappy decompress failed: %v", ErrInvalidBlob, err)
	}

	var doc modelDocument
	if err := msgpack.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlob, err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("%w: blob has %d, reader supports %d", ErrVersionMismatch, doc.SchemaVersion, SchemaVersion)
	}

	kernel, err := kelm.ParseKernelType(doc.Kernel)
	if err != nil {
		return nil, err
	}
	reg, err := kelm.Restore(kelm.Snapshot{
		Kernel: kernel,
		Degree: doc.Degree,
		C:      doc.C,
		Gamma:  doc.Gamma,
		XTrain: doc.XTrain,
		Beta:   doc.Beta,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore regressor: %w", err)
	}
	if len(doc.FeatureMean) != len(doc.FeatureScale) || len(doc.FeatureMean) != len(doc.XTrain[0]) {
		return nil, fmt.Errorf("%w: scaler width does not match training matrix", ErrInvalidBlob)
	}

	m := &TrainedModel{
		regressor:    reg,
		xScaler:      StandardScaler{Mean: doc.FeatureMean, Scale: doc.FeatureScale},
		yScaler:      TargetScaler{Mean: doc.TargetMean, Scale: doc.TargetScale},
		confidenceK:  doc.ConfidenceK,
		lags:         doc.Lags,
		featureNames: doc.FeatureNames,
		metrics:      doc.Metrics,
		search:       doc.Search,
		samples:      doc.Samples,
		version:      doc.Version,
		runID:        doc.RunID,
	}
	if doc.TrainedAt != 0 {
		m.trainedAt = time.Unix(0, doc.TrainedAt).UTC()
	}
	return m, nil
}
