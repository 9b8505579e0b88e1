package handler

import (
	"bytes"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

type decoder interface {
	Decode(d *jx.Decoder) error
}

type encoder interface {
	Encode(e *jx.Encoder)
}

var (
	// errBadRequest marks malformed input detected by the handler itself.
	errBadRequest = errors.New("bad request")
	errEmptyBody  = errors.Wrap(errBadRequest, "empty request body")
)

func badRequest(format string, args ...any) error {
	return errors.Wrapf(errBadRequest, format, args...)
}

func decode(r *http.Request, v decoder) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return badRequest("read body: %v", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return errEmptyBody
	}
	if err := v.Decode(jx.DecodeBytes(body)); err != nil {
		return badRequest("decode body: %v", err)
	}
	return nil
}

// decodeOptional is decode for routes whose body may be omitted.
func decodeOptional(r *http.Request, v decoder) error {
	if err := decode(r, v); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

// pathParam returns the decoded value of a route parameter. chi matches on
// the escaped path, so %2F stays inside one segment.
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	v, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return v
}

func writeJSON(w http.ResponseWriter, status int, v encoder) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	v.Encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

// fieldFunc decodes the value of a single object member.
type fieldFunc func(d *jx.Decoder) error

// decodeObject reads an object whose members are all listed in fields.
// Unknown members fail, null members are left unset.
func decodeObject(d *jx.Decoder, fields map[string]fieldFunc) error {
	return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		f, ok := fields[string(key)]
		if !ok {
			return errors.Errorf("unknown field %q", key)
		}
		if d.Next() == jx.Null {
			return d.Null()
		}
		if err := f(d); err != nil {
			return errors.Wrap(err, string(key))
		}
		return nil
	})
}

func stringField(v *string) fieldFunc {
	return func(d *jx.Decoder) (err error) {
		*v, err = d.Str()
		return err
	}
}

func intField(v *int) fieldFunc {
	return func(d *jx.Decoder) (err error) {
		*v, err = d.Int()
		return err
	}
}

func optIntField(v **int) fieldFunc {
	return func(d *jx.Decoder) error {
		n, err := d.Int()
		if err != nil {
			return err
		}
		*v = &n
		return nil
	}
}

// decimalField accepts both 1000.5 and "1000.5".
func decimalField(v *decimal.Decimal) fieldFunc {
	return func(d *jx.Decoder) error {
		n, err := d.Num()
		if err != nil {
			return err
		}
		*v, err = decimal.NewFromString(strings.Trim(n.String(), `"`))
		return err
	}
}

func optDecimalField(v **decimal.Decimal) fieldFunc {
	return func(d *jx.Decoder) error {
		var x decimal.Decimal
		if err := decimalField(&x)(d); err != nil {
			return err
		}
		*v = &x
		return nil
	}
}

// money renders an amount with exactly two decimals as a JSON number.
func money(d decimal.Decimal) jx.Num {
	return jx.Num(d.StringFixed(2))
}

// fraction renders a rate in [0, 1) as a JSON number.
func fraction(d decimal.Decimal) jx.Num {
	return jx.Num(d.StringFixed(4))
}

func fieldNum(e *jx.Encoder, name string, v jx.Num) {
	e.FieldStart(name)
	e.Num(v)
}

func fieldStr(e *jx.Encoder, name, v string) {
	e.FieldStart(name)
	e.Str(v)
}

func fieldInt(e *jx.Encoder, name string, v int) {
	e.FieldStart(name)
	e.Int(v)
}

func fieldBool(e *jx.Encoder, name string, v bool) {
	e.FieldStart(name)
	e.Bool(v)
}

// fieldOptStr skips the member when v is empty.
func fieldOptStr(e *jx.Encoder, name, v string) {
	if v != "" {
		fieldStr(e, name, v)
	}
}

func encodeArr[T encoder](e *jx.Encoder, name string, items []T) {
	e.FieldStart(name)
	e.ArrStart()
	for _, it := range items {
		it.Encode(e)
	}
	e.ArrEnd()
}
