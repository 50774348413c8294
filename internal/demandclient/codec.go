package demandclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sync"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/nexusrtb/catalyst/internal/openrtb"
)

// EncodeRequest renders req per the endpoint's declared encoding, returning
// the body and the Content-Type header value to send with it.
func EncodeRequest(req *openrtb.BidRequest, encoding Encoding) ([]byte, string, error) {
	switch encoding {
	case EncodingProtobuf:
		return encodeRequestProtobuf(req), "application/x-protobuf", nil
	default:
		body, err := json.Marshal(req)
		if err != nil {
			return nil, "", fmt.Errorf("demandclient: encode json request: %w", err)
		}
		return body, "application/json", nil
	}
}

// DecodeResponse parses a demand endpoint's response body per encoding.
func DecodeResponse(body []byte, encoding Encoding) (*openrtb.BidResponse, error) {
	switch encoding {
	case EncodingProtobuf:
		return decodeResponseProtobuf(body)
	default:
		var resp openrtb.BidResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, fmt.Errorf("demandclient: decode json response: %w", err)
		}
		return &resp, nil
	}
}

// The protobuf codec below hand-encodes a representative subset of
// BidRequest/BidResponse fields directly with protowire, rather than
// generating a full OpenRTB .proto schema: no .proto definitions for
// OpenRTB exist anywhere in the corpus this module was built from, and
// protobuf here is a wire content-type preference per endpoint, not a
// requirement for byte-for-byte schema parity with a reference demand
// partner. Field numbers below are this module's own convention.
const (
	fieldReqID   = 1
	fieldReqTmax = 2
	fieldReqAt   = 3
	fieldReqImp  = 4 // repeated, sub-message {id=1 string, tagid=2 string}

	fieldImpID    = 1
	fieldImpTagID = 2

	fieldRespID      = 1
	fieldRespNBR     = 2
	fieldRespCur     = 3
	fieldRespSeatBid = 4 // repeated, sub-message {seat=1 string, bid=2 repeated sub-message}

	fieldSeatName = 1
	fieldSeatBid  = 2

	fieldBidID     = 1
	fieldBidImpID  = 2
	fieldBidPrice  = 3 // double
	fieldBidAdm    = 4
	fieldBidW      = 5
	fieldBidH      = 6
	fieldBidBurl   = 7
	fieldBidNurl   = 8
)

func encodeRequestProtobuf(req *openrtb.BidRequest) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldReqID, protowire.BytesType)
	b = protowire.AppendString(b, req.ID)
	b = protowire.AppendTag(b, fieldReqTmax, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.TMax))
	b = protowire.AppendTag(b, fieldReqAt, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(req.AT))

	for _, imp := range req.Imp {
		var impBytes []byte
		impBytes = protowire.AppendTag(impBytes, fieldImpID, protowire.BytesType)
		impBytes = protowire.AppendString(impBytes, imp.ID)
		if imp.TagID != "" {
			impBytes = protowire.AppendTag(impBytes, fieldImpTagID, protowire.BytesType)
			impBytes = protowire.AppendString(impBytes, imp.TagID)
		}
		b = protowire.AppendTag(b, fieldReqImp, protowire.BytesType)
		b = protowire.AppendBytes(b, impBytes)
	}
	return b
}

func decodeResponseProtobuf(body []byte) (*openrtb.BidResponse, error) {
	resp := &openrtb.BidResponse{}
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return nil, fmt.Errorf("demandclient: protobuf: bad tag: %w", protowire.ParseError(n))
		}
		body = body[n:]

		switch num {
		case fieldRespID:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return nil, fmt.Errorf("demandclient: protobuf: bad id field")
			}
			resp.ID = s
			body = body[sn:]
		case fieldRespNBR:
			v, vn := protowire.ConsumeVarint(body)
			if vn < 0 {
				return nil, fmt.Errorf("demandclient: protobuf: bad nbr field")
			}
			resp.NBR = int(v)
			body = body[vn:]
		case fieldRespCur:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return nil, fmt.Errorf("demandclient: protobuf: bad cur field")
			}
			resp.Cur = s
			body = body[sn:]
		case fieldRespSeatBid:
			raw, sn := protowire.ConsumeBytes(body)
			if sn < 0 {
				return nil, fmt.Errorf("demandclient: protobuf: bad seatbid field")
			}
			seat, err := decodeSeatBidProtobuf(raw)
			if err != nil {
				return nil, err
			}
			resp.SeatBid = append(resp.SeatBid, seat)
			body = body[sn:]
		default:
			sn := protowire.ConsumeFieldValue(num, typ, body)
			if sn < 0 {
				return nil, fmt.Errorf("demandclient: protobuf: bad field %d", num)
			}
			body = body[sn:]
		}
	}
	return resp, nil
}

func decodeSeatBidProtobuf(body []byte) (openrtb.SeatBid, error) {
	var seat openrtb.SeatBid
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return seat, fmt.Errorf("demandclient: protobuf: bad seat tag")
		}
		body = body[n:]
		switch num {
		case fieldSeatName:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return seat, fmt.Errorf("demandclient: protobuf: bad seat name")
			}
			seat.Seat = s
			body = body[sn:]
		case fieldSeatBid:
			raw, sn := protowire.ConsumeBytes(body)
			if sn < 0 {
				return seat, fmt.Errorf("demandclient: protobuf: bad seat bid")
			}
			bid, err := decodeBidProtobuf(raw)
			if err != nil {
				return seat, err
			}
			seat.Bid = append(seat.Bid, bid)
			body = body[sn:]
		default:
			sn := protowire.ConsumeFieldValue(num, typ, body)
			if sn < 0 {
				return seat, fmt.Errorf("demandclient: protobuf: bad seat field %d", num)
			}
			body = body[sn:]
		}
	}
	return seat, nil
}

func decodeBidProtobuf(body []byte) (openrtb.Bid, error) {
	var bid openrtb.Bid
	for len(body) > 0 {
		num, typ, n := protowire.ConsumeTag(body)
		if n < 0 {
			return bid, fmt.Errorf("demandclient: protobuf: bad bid tag")
		}
		body = body[n:]
		switch num {
		case fieldBidID:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid id")
			}
			bid.ID = s
			body = body[sn:]
		case fieldBidImpID:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid impid")
			}
			bid.ImpID = s
			body = body[sn:]
		case fieldBidPrice:
			v, sn := protowire.ConsumeFixed64(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid price")
			}
			bid.Price = math.Float64frombits(v)
			body = body[sn:]
		case fieldBidAdm:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid adm")
			}
			bid.AdM = s
			body = body[sn:]
		case fieldBidW:
			v, sn := protowire.ConsumeVarint(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid w")
			}
			bid.W = int(v)
			body = body[sn:]
		case fieldBidH:
			v, sn := protowire.ConsumeVarint(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid h")
			}
			bid.H = int(v)
			body = body[sn:]
		case fieldBidBurl:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid burl")
			}
			bid.BURL = s
			body = body[sn:]
		case fieldBidNurl:
			s, sn := protowire.ConsumeString(body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid nurl")
			}
			bid.NURL = s
			body = body[sn:]
		default:
			sn := protowire.ConsumeFieldValue(num, typ, body)
			if sn < 0 {
				return bid, fmt.Errorf("demandclient: protobuf: bad bid field %d", num)
			}
			body = body[sn:]
		}
	}
	return bid, nil
}

// gzipWriterPool mirrors the teacher's middleware gzip writer pool, reused
// here for outbound request compression instead of response compression.
var gzipWriterPool = sync.Pool{
	New: func() interface{} {
		w, _ := gzip.NewWriterLevel(io.Discard, gzip.DefaultCompression)
		return w
	},
}

// compressGzip compresses body for bidders that declare gzip request
// support, using a pooled writer the way the teacher's response-side gzip
// middleware pools writers.
func compressGzip(body []byte) ([]byte, error) {
	w, _ := gzipWriterPool.Get().(*gzip.Writer)
	if w == nil {
		return nil, fmt.Errorf("demandclient: gzip writer pool exhausted")
	}
	defer gzipWriterPool.Put(w)

	var buf bytes.Buffer
	w.Reset(&buf)
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("demandclient: gzip compress: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("demandclient: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// decompressBody inflates a response body per its Content-Encoding header;
// supports both gzip and deflate since demand endpoints may use either.
func decompressBody(body []byte, contentEncoding string) ([]byte, error) {
	switch contentEncoding {
	case "gzip":
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("demandclient: gzip decompress: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case "deflate":
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	default:
		return body, nil
	}
}
