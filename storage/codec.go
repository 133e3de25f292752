package storage

import (
	"fmt"
	"math"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/fathom/core"
)

// MUS serializers for stored values. Each satisfies mus.Serializer for its type.
var (
	ResultItemMUS  = resultItemMUS{}
	CacheEntryMUS  = cacheEntryMUS{}
	FeedItemMUS    = feedItemMUS{}
	QueryVectorMUS = queryVectorMUS{}
)

// encoder writes consecutive fields into a buffer sized by the matching Size method.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) str(v string) {
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) integer(v int) {
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *encoder) float(v float64) {
	e.n += varint.Uint64.Marshal(math.Float64bits(v), e.bs[e.n:])
}

// timestamp stores microseconds since the epoch; the zero time is stored as 0.
func (e *encoder) timestamp(v time.Time) {
	e.n += varint.Int64.Marshal(unixMicro(v), e.bs[e.n:])
}

func (e *encoder) stringMap(v map[string]string) {
	e.integer(len(v))
	for k, val := range v {
		e.str(k)
		e.str(val)
	}
}

func (e *encoder) vector(v []float32) {
	e.integer(len(v))
	for _, f := range v {
		e.n += varint.Uint32.Marshal(math.Float32bits(f), e.bs[e.n:])
	}
}

// decoder reads consecutive fields. The first error sticks and later reads are no-ops.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) str() (v string) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

func (d *decoder) integer() (v int) {
	if d.err != nil {
		return
	}
	var n int
	v, n, d.err = varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	return
}

func (d *decoder) float() float64 {
	if d.err != nil {
		return 0
	}
	bits, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return math.Float64frombits(bits)
}

func (d *decoder) timestamp() time.Time {
	if d.err != nil {
		return time.Time{}
	}
	micros, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	if err != nil || micros == 0 {
		return time.Time{}
	}
	return time.UnixMicro(micros).UTC()
}

// length reads a collection length and rejects values the remaining input cannot hold.
func (d *decoder) length() int {
	l := d.integer()
	if d.err != nil {
		return 0
	}
	if l < 0 {
		d.err = fmt.Errorf("%w: negative length %d", ErrSerializationFailed, l)
		return 0
	}
	if l > len(d.bs)-d.n {
		d.err = fmt.Errorf("%w: length %d exceeds remaining %d bytes", ErrTruncatedData, l, len(d.bs)-d.n)
		return 0
	}
	return l
}

func (d *decoder) stringMap() map[string]string {
	l := d.length()
	if l == 0 {
		return nil
	}
	v := make(map[string]string, l)
	for i := 0; i < l && d.err == nil; i++ {
		k := d.str()
		v[k] = d.str()
	}
	return v
}

func (d *decoder) vector() []float32 {
	l := d.length()
	if l == 0 {
		return nil
	}
	v := make([]float32, 0, l)
	for i := 0; i < l && d.err == nil; i++ {
		bits, n, err := varint.Uint32.Unmarshal(d.bs[d.n:])
		d.n += n
		d.err = err
		v = append(v, math.Float32frombits(bits))
	}
	return v
}

func unixMicro(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMicro()
}

func sizeStringMap(v map[string]string) (size int) {
	size = varint.Int.Size(len(v))
	for k, val := range v {
		size += ord.String.Size(k) + ord.String.Size(val)
	}
	return
}

type resultItemMUS struct{}

func (s resultItemMUS) Marshal(v core.ResultItem, bs []byte) (n int) {
	e := encoder{bs: bs}
	s.encode(&e, v)
	return e.n
}

func (s resultItemMUS) encode(e *encoder, v core.ResultItem) {
	e.str(v.Title)
	e.str(v.URL)
	e.str(v.Content)
	e.float(v.Score)
	e.str(v.DisplayURL)
	e.str(v.SiteName)
	e.str(v.Thumbnail)
	e.timestamp(v.PublishedDate)
	e.str(v.Template)
	e.integer(int(v.ResultType))
	e.stringMap(v.Metadata)
}

func (s resultItemMUS) Unmarshal(bs []byte) (v core.ResultItem, n int, err error) {
	d := decoder{bs: bs}
	v = s.decode(&d)
	return v, d.n, d.err
}

func (s resultItemMUS) decode(d *decoder) (v core.ResultItem) {
	v.Title = d.str()
	v.URL = d.str()
	v.Content = d.str()
	v.Score = d.float()
	v.DisplayURL = d.str()
	v.SiteName = d.str()
	v.Thumbnail = d.str()
	v.PublishedDate = d.timestamp()
	v.Template = d.str()
	v.ResultType = core.ResultType(d.integer())
	v.Metadata = d.stringMap()
	return
}

func (s resultItemMUS) Size(v core.ResultItem) (size int) {
	size = ord.String.Size(v.Title) +
		ord.String.Size(v.URL) +
		ord.String.Size(v.Content) +
		varint.Uint64.Size(math.Float64bits(v.Score)) +
		ord.String.Size(v.DisplayURL) +
		ord.String.Size(v.SiteName) +
		ord.String.Size(v.Thumbnail) +
		varint.Int64.Size(unixMicro(v.PublishedDate)) +
		ord.String.Size(v.Template) +
		varint.Int.Size(int(v.ResultType))
	return size + sizeStringMap(v.Metadata)
}

func (s resultItemMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type cacheEntryMUS struct{}

func (s cacheEntryMUS) Marshal(v core.CacheEntry, bs []byte) (n int) {
	e := encoder{bs: bs}
	e.str(v.Key)
	e.str(v.Query)
	e.str(v.Engine)
	e.timestamp(v.StoredAt)
	e.timestamp(v.ExpiresAt)
	e.integer(len(v.Items))
	for _, item := range v.Items {
		ResultItemMUS.encode(&e, item)
	}
	return e.n
}

func (s cacheEntryMUS) Unmarshal(bs []byte) (v core.CacheEntry, n int, err error) {
	d := decoder{bs: bs}
	v.Key = d.str()
	v.Query = d.str()
	v.Engine = d.str()
	v.StoredAt = d.timestamp()
	v.ExpiresAt = d.timestamp()
	if l := d.length(); l > 0 {
		v.Items = make([]core.ResultItem, 0, l)
		for i := 0; i < l && d.err == nil; i++ {
			v.Items = append(v.Items, ResultItemMUS.decode(&d))
		}
	}
	return v, d.n, d.err
}

func (s cacheEntryMUS) Size(v core.CacheEntry) (size int) {
	size = ord.String.Size(v.Key) +
		ord.String.Size(v.Query) +
		ord.String.Size(v.Engine) +
		varint.Int64.Size(unixMicro(v.StoredAt)) +
		varint.Int64.Size(unixMicro(v.ExpiresAt)) +
		varint.Int.Size(len(v.Items))
	for _, item := range v.Items {
		size += ResultItemMUS.Size(item)
	}
	return
}

func (s cacheEntryMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type feedItemMUS struct{}

func (s feedItemMUS) Marshal(v core.FeedItem, bs []byte) (n int) {
	e := encoder{bs: bs}
	e.str(v.GUID)
	e.str(v.FeedURL)
	e.str(v.Title)
	e.str(v.Content)
	e.str(v.Link)
	e.str(v.Author)
	e.timestamp(v.Published)
	return e.n
}

func (s feedItemMUS) Unmarshal(bs []byte) (v core.FeedItem, n int, err error) {
	d := decoder{bs: bs}
	v.GUID = d.str()
	v.FeedURL = d.str()
	v.Title = d.str()
	v.Content = d.str()
	v.Link = d.str()
	v.Author = d.str()
	v.Published = d.timestamp()
	return v, d.n, d.err
}

func (s feedItemMUS) Size(v core.FeedItem) int {
	return ord.String.Size(v.GUID) +
		ord.String.Size(v.FeedURL) +
		ord.String.Size(v.Title) +
		ord.String.Size(v.Content) +
		ord.String.Size(v.Link) +
		ord.String.Size(v.Author) +
		varint.Int64.Size(unixMicro(v.Published))
}

func (s feedItemMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}

type queryVectorMUS struct{}

func (s queryVectorMUS) Marshal(v core.QueryVector, bs []byte) (n int) {
	e := encoder{bs: bs}
	e.str(v.Key)
	e.str(v.Query)
	e.str(v.Scope)
	e.vector(v.Vector)
	return e.n
}

func (s queryVectorMUS) Unmarshal(bs []byte) (v core.QueryVector, n int, err error) {
	d := decoder{bs: bs}
	v.Key = d.str()
	v.Query = d.str()
	v.Scope = d.str()
	v.Vector = d.vector()
	return v, d.n, d.err
}

func (s queryVectorMUS) Size(v core.QueryVector) (size int) {
	size = ord.String.Size(v.Key) +
		ord.String.Size(v.Query) +
		ord.String.Size(v.Scope) +
		varint.Int.Size(len(v.Vector))
	for _, f := range v.Vector {
		size += varint.Uint32.Size(math.Float32bits(f))
	}
	return
}

func (s queryVectorMUS) Skip(bs []byte) (n int, err error) {
	_, n, err = s.Unmarshal(bs)
	return
}
