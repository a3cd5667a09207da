package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/WingsOS/android-packages-modules-StatsD/bucket"
	"github.com/WingsOS/android-packages-modules-StatsD/report"
)

// EncodeReport serializes r into the outbound report envelope of §6.
// Metrics and, within each metric, dimensions are sorted into a canonical
// order before encoding so that serialize -> parse -> serialize round-trips
// to byte-identical output (§8 "Round-trip") regardless of the map
// iteration order the caller assembled r in.
func EncodeReport(r report.Report) []byte {
	metrics := append([]report.MetricReport(nil), r.Metrics...)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].MetricID < metrics[j].MetricID })

	var buf bytes.Buffer
	putVarint(&buf, int64(len(r.ConfigKey)))
	buf.WriteString(r.ConfigKey)
	putVarint(&buf, int64(len(metrics)))
	for _, m := range metrics {
		encodeMetricReport(&buf, m)
	}
	return buf.Bytes()
}

func encodeMetricReport(buf *bytes.Buffer, m report.MetricReport) {
	putVarint(buf, m.MetricID)
	putVarint(buf, m.TimeBaseNs)
	putVarint(buf, m.BucketSizeNs)
	putVarint(buf, int64(len(m.DimensionPath)))
	for _, t := range m.DimensionPath {
		putVarint(buf, int64(t))
	}

	dims := append([]report.DimensionEntry(nil), m.Dimensions...)
	sort.Slice(dims, func(i, j int) bool {
		if dims[i].DimensionHash != dims[j].DimensionHash {
			return dims[i].DimensionHash < dims[j].DimensionHash
		}
		return dims[i].StateValuesHash < dims[j].StateValuesHash
	})
	putVarint(buf, int64(len(dims)))
	for _, d := range dims {
		encodeDimensionEntry(buf, d)
	}

	flags := byte(0)
	if m.GuardrailHit {
		flags |= 1
	}
	if m.Active {
		flags |= 2
	}
	buf.WriteByte(flags)
}

func encodeDimensionEntry(buf *bytes.Buffer, d report.DimensionEntry) {
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], d.DimensionHash)
	buf.Write(b8[:])
	binary.LittleEndian.PutUint64(b8[:], d.StateValuesHash)
	buf.Write(b8[:])

	putVarint(buf, int64(len(d.Past)))
	for _, p := range d.Past {
		encodePastBucket(buf, p)
	}
}

func encodePastBucket(buf *bytes.Buffer, p bucket.Past) {
	putVarint(buf, int64(p.Num))
	putVarint(buf, p.StartNs)
	putVarint(buf, p.EndNs)
	flags := byte(0)
	if p.Partial {
		flags |= 1
	}
	if p.HasCondition {
		flags |= 2
	}
	buf.WriteByte(flags)
	var b8 [8]byte
	binary.LittleEndian.PutUint64(b8[:], math.Float64bits(p.Value))
	buf.Write(b8[:])
	if p.HasCondition {
		putVarint(buf, p.ConditionNs)
	}
}

// DecodeReport parses a report envelope previously produced by EncodeReport.
func DecodeReport(data []byte) (report.Report, error) {
	r := bytes.NewReader(data)
	nameLen, err := binary.ReadVarint(r)
	if err != nil {
		return report.Report{}, err
	}
	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return report.Report{}, err
	}
	metricCount, err := binary.ReadVarint(r)
	if err != nil {
		return report.Report{}, err
	}
	out := report.Report{ConfigKey: string(nameBuf), Metrics: make([]report.MetricReport, 0, metricCount)}
	for i := int64(0); i < metricCount; i++ {
		m, err := decodeMetricReport(r)
		if err != nil {
			return report.Report{}, fmt.Errorf("wire: metric %d: %w", i, err)
		}
		out.Metrics = append(out.Metrics, m)
	}
	return out, nil
}

func decodeMetricReport(r *bytes.Reader) (report.MetricReport, error) {
	var m report.MetricReport
	var err error
	if m.MetricID, err = binary.ReadVarint(r); err != nil {
		return m, err
	}
	if m.TimeBaseNs, err = binary.ReadVarint(r); err != nil {
		return m, err
	}
	if m.BucketSizeNs, err = binary.ReadVarint(r); err != nil {
		return m, err
	}
	pathLen, err := binary.ReadVarint(r)
	if err != nil {
		return m, err
	}
	m.DimensionPath = make([]int32, pathLen)
	for i := range m.DimensionPath {
		t, err := binary.ReadVarint(r)
		if err != nil {
			return m, err
		}
		m.DimensionPath[i] = int32(t)
	}

	dimCount, err := binary.ReadVarint(r)
	if err != nil {
		return m, err
	}
	m.Dimensions = make([]report.DimensionEntry, 0, dimCount)
	for i := int64(0); i < dimCount; i++ {
		d, err := decodeDimensionEntry(r)
		if err != nil {
			return m, fmt.Errorf("dimension %d: %w", i, err)
		}
		m.Dimensions = append(m.Dimensions, d)
	}

	flags, err := r.ReadByte()
	if err != nil {
		return m, err
	}
	m.GuardrailHit = flags&1 != 0
	m.Active = flags&2 != 0
	return m, nil
}

func decodeDimensionEntry(r *bytes.Reader) (report.DimensionEntry, error) {
	var d report.DimensionEntry
	var b8 [8]byte
	if _, err := io.ReadFull(r, b8[:]); err != nil {
		return d, err
	}
	d.DimensionHash = binary.LittleEndian.Uint64(b8[:])
	if _, err := io.ReadFull(r, b8[:]); err != nil {
		return d, err
	}
	d.StateValuesHash = binary.LittleEndian.Uint64(b8[:])

	pastCount, err := binary.ReadVarint(r)
	if err != nil {
		return d, err
	}
	d.Past = make([]bucket.Past, 0, pastCount)
	for i := int64(0); i < pastCount; i++ {
		p, err := decodePastBucket(r)
		if err != nil {
			return d, fmt.Errorf("past bucket %d: %w", i, err)
		}
		d.Past = append(d.Past, p)
	}
	return d, nil
}

func decodePastBucket(r *bytes.Reader) (bucket.Past, error) {
	var p bucket.Past
	num, err := binary.ReadVarint(r)
	if err != nil {
		return p, err
	}
	p.Num = bucket.Num(num)
	if p.StartNs, err = binary.ReadVarint(r); err != nil {
		return p, err
	}
	if p.EndNs, err = binary.ReadVarint(r); err != nil {
		return p, err
	}
	flags, err := r.ReadByte()
	if err != nil {
		return p, err
	}
	p.Partial = flags&1 != 0
	p.HasCondition = flags&2 != 0
	var b8 [8]byte
	if _, err := io.ReadFull(r, b8[:]); err != nil {
		return p, err
	}
	p.Value = math.Float64frombits(binary.LittleEndian.Uint64(b8[:]))
	if p.HasCondition {
		if p.ConditionNs, err = binary.ReadVarint(r); err != nil {
			return p, err
		}
	}
	return p, nil
}
