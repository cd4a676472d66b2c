package deviceconfig

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rackops/imdcfg/internal/plan"
	"github.com/rackops/imdcfg/internal/validate"
)

// UnknownFirmware is shown when the version cannot be read.
const UnknownFirmware = "Unknown"

// FirmwareVersion reads the running firmware version from sys/version.
func (c *Client) FirmwareVersion(ctx context.Context) (string, error) {
	resp, err := c.Get(ctx, "sys/version")
	if err != nil {
		return UnknownFirmware, err
	}
	if !resp.OK() {
		return UnknownFirmware, NewDeviceError("reading firmware version failed", resp.RetCode, resp.RetMsg)
	}
	version, err := resp.DataString()
	if err != nil {
		return UnknownFirmware, NewParseError("firmware version missing from response", err)
	}
	if !validate.IsValidFirmwareVersion(version) {
		return UnknownFirmware, NewValidationError(fmt.Sprintf("firmware version %q is not valid", version))
	}
	return version, nil
}

// AddCredentials creates the device account. Credentials that already
// exist count as success.
func (c *Client) AddCredentials(ctx context.Context, username, password string) error {
	return c.expect(ctx, plan.APICall{
		Cmd:     plan.CmdAdd,
		Method:  "post",
		APIPath: "auth",
		Data:    plan.ObjectPayload(map[string]any{"username": username, "password": password}),
	}, "adding credentials")
}

// SetPassword changes the password of username, authenticating with the
// client's current credentials.
func (c *Client) SetPassword(ctx context.Context, username, newPassword string) error {
	return c.expect(ctx, plan.APICall{
		Cmd:     plan.CmdSet,
		Method:  "post",
		APIPath: "auth/" + username,
		Data:    plan.ObjectPayload(map[string]any{"password": newPassword}),
	}, "setting password")
}

// FactoryReset sends the configured reset call.
func (c *Client) FactoryReset(ctx context.Context, call plan.APICall) error {
	return c.expect(ctx, call, "factory reset")
}

func (c *Client) expect(ctx context.Context, call plan.APICall, what string) error {
	resp, err := c.Do(ctx, call)
	if err != nil {
		return err
	}
	if Classify(call, resp, nil).Success() {
		return nil
	}
	return NewDeviceError(what+" failed", resp.RetCode, resp.RetMsg)
}

// UploadFirmware posts the firmware image at path as a multipart form to
// uploadPath. The body is streamed; progress, when not nil, is called with
// the number of bytes sent so far.
func (c *Client) UploadFirmware(ctx context.Context, uploadPath, path string, progress func(sent int64)) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open firmware file: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		err := writeFirmwareForm(mw, c.Username, c.Password, filepath.Base(path), &countingReader{r: f, fn: progress})
		if err == nil {
			err = mw.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	resp, err := c.send(ctx, http.MethodPost, c.URL(uploadPath), mw.FormDataContentType(), pr)
	_ = pr.Close()
	if err != nil {
		return err
	}
	if !resp.OK() {
		return NewDeviceError("firmware upload failed", resp.RetCode, resp.RetMsg)
	}
	return nil
}

func writeFirmwareForm(mw *multipart.Writer, username, password, filename string, r io.Reader) error {
	if err := mw.WriteField("username", username); err != nil {
		return err
	}
	if err := mw.WriteField("password", password); err != nil {
		return err
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return err
	}
	_, err = io.Copy(part, r)
	return err
}

type countingReader struct {
	r  io.Reader
	n  int64
	fn func(int64)
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.fn != nil && n > 0 {
		c.fn(c.n)
	}
	return n, err
}
