package msg

import (
	"bufio"
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"

	"github.com/wagiedev/proc-macro-client-go/internal/errors"
)

// WriteRequest encodes req as one line and writes it to w in a single call.
func WriteRequest(w io.Writer, req *Request) error {
	if req.Kind() != VariantListMacro && req.Kind() != VariantExpansionMacro {
		return fmt.Errorf("write request: invalid request variant %s", req.Kind())
	}

	return writeLine(w, req)
}

// ReadResponse reads exactly one response line from r.
//
// End of stream, a read error, malformed JSON and a message that does not
// carry exactly one variant are all returned as errors; the caller treats
// them as a broken connection.
func ReadResponse(r *bufio.Reader) (*Response, error) {
	var resp Response
	if err := readLine(r, &resp); err != nil {
		return nil, err
	}

	if n := resp.variants(); n != 1 {
		return nil, &errors.DecodeError{
			Err: fmt.Errorf("response carries %d variants, want 1", n),
		}
	}

	return &resp, nil
}

// ReadRequest reads exactly one request line from r. Server implementations
// use it; io.EOF is returned unwrapped when the client closed the stream.
func ReadRequest(r *bufio.Reader) (*Request, error) {
	var req Request
	if err := readLine(r, &req); err != nil {
		return nil, err
	}

	if k := req.Kind(); k != VariantListMacro && k != VariantExpansionMacro {
		return nil, &errors.DecodeError{Err: fmt.Errorf("request variant %s", k)}
	}

	return &req, nil
}

// WriteResponse encodes resp as one line and writes it to w.
func WriteResponse(w io.Writer, resp *Response) error {
	if n := resp.variants(); n != 1 {
		return fmt.Errorf("write response: carries %d variants, want 1", n)
	}

	return writeLine(w, resp)
}

func writeLine(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	data = append(data, '\n')

	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write message: %w", err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("flush message: %w", err)
		}
	}

	return nil
}

func readLine(r *bufio.Reader, v any) error {
	for {
		line, err := r.ReadBytes('\n')
		if err != nil {
			if stderrors.Is(err, io.EOF) && len(bytes.TrimSpace(line)) > 0 {
				return io.ErrUnexpectedEOF
			}

			return err
		}

		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}

		if err := json.Unmarshal(line, v); err != nil {
			return &errors.DecodeError{RawData: string(line), Err: err}
		}

		return nil
	}
}
