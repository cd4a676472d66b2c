package deviceconfig

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strings"
	"syscall"
)

// ErrorType represents the category of error that occurred
type ErrorType int

const (
	// ErrTypeNetwork indicates a network-level error (unreachable host, reset connection)
	ErrTypeNetwork ErrorType = iota
	// ErrTypeAuth indicates the device rejected the credentials at the HTTP layer
	ErrTypeAuth
	// ErrTypeHTTP indicates an HTTP-level error (non-2xx status code)
	ErrTypeHTTP
	// ErrTypeParse indicates the response was not the expected JSON
	ErrTypeParse
	// ErrTypeValidation indicates a request or response value is invalid
	ErrTypeValidation
	// ErrTypeTimeout indicates a request timeout
	ErrTypeTimeout
	// ErrTypeConnectionRefused indicates the device refused the connection
	ErrTypeConnectionRefused
	// ErrTypeDNS indicates a DNS resolution failure
	ErrTypeDNS
	// ErrTypeTLS indicates the TLS handshake failed
	ErrTypeTLS
	// ErrTypeDevice indicates the device answered with a non-zero retCode
	ErrTypeDevice
	// ErrTypeUnknown indicates an unknown or unexpected error
	ErrTypeUnknown
)

// NetworkErrorSubtype provides more specific network error classification
type NetworkErrorSubtype int

const (
	NetworkErrorGeneral NetworkErrorSubtype = iota
	NetworkErrorTimeout
	NetworkErrorConnectionRefused
	NetworkErrorDNS
	NetworkErrorHostUnreachable
	NetworkErrorNetworkUnreachable
)

// String returns a human-readable name for the error type
func (et ErrorType) String() string {
	switch et {
	case ErrTypeNetwork:
		return "Network Error"
	case ErrTypeAuth:
		return "Authentication Error"
	case ErrTypeHTTP:
		return "HTTP Error"
	case ErrTypeParse:
		return "Parse Error"
	case ErrTypeValidation:
		return "Validation Error"
	case ErrTypeTimeout:
		return "Timeout"
	case ErrTypeConnectionRefused:
		return "Connection Refused"
	case ErrTypeDNS:
		return "DNS Error"
	case ErrTypeTLS:
		return "TLS Error"
	case ErrTypeDevice:
		return "Device Error"
	case ErrTypeUnknown:
		return "Unknown Error"
	default:
		return fmt.Sprintf("ErrorType(%d)", et)
	}
}

// DeviceError represents an error that occurred talking to an IMD
type DeviceError struct {
	Type           ErrorType           // Category of error
	Message        string              // Human-readable error message
	StatusCode     int                 // HTTP status code (if applicable)
	RetCode        int                 // Device retCode (ErrTypeDevice only)
	RetMsg         string              // Device retMsg, verbatim
	Err            error               // Underlying error (if any)
	NetworkSubtype NetworkErrorSubtype // More specific network error type
	DeviceIP       string              // Device IP address (for context)
	Retryable      bool                // Whether the error is retryable
}

// Error implements the error interface
func (e *DeviceError) Error() string {
	switch {
	case e.Type == ErrTypeDevice:
		return fmt.Sprintf("%s: %s (retCode %d: %s)", e.Type, e.Message, e.RetCode, e.RetMsg)
	case e.Err != nil:
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *DeviceError) Unwrap() error {
	return e.Err
}

// ClassifyNetworkError analyzes a transport error and returns a more specific error type
func ClassifyNetworkError(err error, deviceIP string) *DeviceError {
	if err == nil {
		return nil
	}

	// Check for timeout errors
	if os.IsTimeout(err) {
		return &DeviceError{
			Type:           ErrTypeTimeout,
			Message:        "Request timed out",
			Err:            err,
			NetworkSubtype: NetworkErrorTimeout,
			DeviceIP:       deviceIP,
			Retryable:      true,
		}
	}

	// Check for DNS errors
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &DeviceError{
			Type:           ErrTypeDNS,
			Message:        fmt.Sprintf("DNS resolution failed for %s", dnsErr.Name),
			Err:            err,
			NetworkSubtype: NetworkErrorDNS,
			DeviceIP:       deviceIP,
			Retryable:      false,
		}
	}

	if isTLSError(err) {
		return &DeviceError{
			Type:      ErrTypeTLS,
			Message:   "TLS handshake with the device failed",
			Err:       err,
			DeviceIP:  deviceIP,
			Retryable: true,
		}
	}

	// Check for connection refused
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return &DeviceError{
				Type:           ErrTypeConnectionRefused,
				Message:        "Device refused connection",
				Err:            err,
				NetworkSubtype: NetworkErrorConnectionRefused,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.EHOSTUNREACH) {
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Host unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorHostUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		}
		if errors.Is(opErr.Err, syscall.ENETUNREACH) {
			return &DeviceError{
				Type:           ErrTypeNetwork,
				Message:        "Network unreachable",
				Err:            err,
				NetworkSubtype: NetworkErrorNetworkUnreachable,
				DeviceIP:       deviceIP,
				Retryable:      true,
			}
		}
	}

	// Check for URL errors
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != err {
		// Recursively classify the underlying error
		return ClassifyNetworkError(urlErr.Err, deviceIP)
	}

	// Generic network error
	return &DeviceError{
		Type:           ErrTypeNetwork,
		Message:        "Network error occurred",
		Err:            err,
		NetworkSubtype: NetworkErrorGeneral,
		DeviceIP:       deviceIP,
		Retryable:      true,
	}
}

func isTLSError(err error) bool {
	var recErr tls.RecordHeaderError
	if errors.As(err, &recErr) {
		return true
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return true
	}
	return strings.Contains(err.Error(), "tls: ")
}

// NewNetworkError creates a network-level error with automatic classification
func NewNetworkError(message string, err error) *DeviceError {
	classified := ClassifyNetworkError(err, "")
	if classified != nil {
		classified.Message = message
		return classified
	}
	return &DeviceError{
		Type:      ErrTypeNetwork,
		Message:   message,
		Err:       err,
		Retryable: true,
	}
}

// NewAuthError creates an authentication error
func NewAuthError(message string) *DeviceError {
	return &DeviceError{
		Type:       ErrTypeAuth,
		Message:    message,
		StatusCode: http.StatusUnauthorized,
		Retryable:  false,
	}
}

// NewHTTPError creates an HTTP-level error
func NewHTTPError(statusCode int, message string) *DeviceError {
	retryable := statusCode >= 500 // Server errors are retryable
	return &DeviceError{
		Type:       ErrTypeHTTP,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}

// NewParseError creates a parsing error
func NewParseError(message string, err error) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeParse,
		Message:   message,
		Err:       err,
		Retryable: false,
	}
}

// NewValidationError creates a validation error
func NewValidationError(message string) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeValidation,
		Message:   message,
		Retryable: false,
	}
}

// NewDeviceError records a non-zero retCode. retMsg is kept exactly as the
// device sent it.
func NewDeviceError(message string, retCode int, retMsg string) *DeviceError {
	return &DeviceError{
		Type:      ErrTypeDevice,
		Message:   message,
		RetCode:   retCode,
		RetMsg:    retMsg,
		Retryable: true,
	}
}

func asDeviceError(err error) (*DeviceError, bool) {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr, true
	}
	return nil, false
}

// IsNetworkError checks if an error is a transport error (including timeout, connection refused, DNS, TLS)
func IsNetworkError(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Type == ErrTypeNetwork ||
			devErr.Type == ErrTypeTimeout ||
			devErr.Type == ErrTypeConnectionRefused ||
			devErr.Type == ErrTypeDNS ||
			devErr.Type == ErrTypeTLS
	}
	return false
}

// IsRetryable checks if an error should be retried
func IsRetryable(err error) bool {
	if devErr, ok := asDeviceError(err); ok {
		return devErr.Retryable
	}
	// Unknown errors are not retryable by default
	return false
}

// GetTroubleshootingHint returns user-friendly troubleshooting advice for an error
func GetTroubleshootingHint(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return "An unexpected error occurred. Please try again."
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return strings.Join([]string{
			"The IMD did not respond in time.",
			"Troubleshooting:",
			"  • Check that the IMD is powered and its network port is connected",
			"  • The IMD may still be rebooting after a firmware upgrade or reset",
			"  • Try increasing the download/request timeout",
		}, "\n")

	case ErrTypeConnectionRefused:
		return strings.Join([]string{
			"The IMD refused the connection.",
			"Troubleshooting:",
			"  • The web server may still be starting - wait a minute and retry",
			"  • Check that HTTPS is enabled on the IMD",
		}, "\n")

	case ErrTypeDNS:
		return strings.Join([]string{
			"Could not resolve the IMD hostname.",
			"Troubleshooting:",
			"  • Use the IP address instead (factory default 192.168.123.123)",
			"  • Check your network DNS settings",
		}, "\n")

	case ErrTypeTLS:
		return strings.Join([]string{
			"The TLS handshake with the IMD failed.",
			"Troubleshooting:",
			"  • Confirm the address belongs to an IMD and not another host",
			"  • A unit mid-reboot can reset connections - retry shortly",
		}, "\n")

	case ErrTypeAuth:
		return strings.Join([]string{
			"Authentication failed.",
			"Troubleshooting:",
			"  • Check the username and password for this IMD",
			"  • A unit configured earlier may need a factory reset",
		}, "\n")

	case ErrTypeDevice:
		return fmt.Sprintf("The IMD rejected the request: %s (retCode %d).", devErr.RetMsg, devErr.RetCode)

	case ErrTypeNetwork:
		hint := []string{"Network communication failed."}

		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			hint = append(hint, "The IMD is not reachable on the network.",
				"Troubleshooting:",
				"  • Verify the IMD IP address is correct",
				"  • Make sure your interface has an address in the IMD's subnet",
				"  • Try pinging the IMD: ping "+devErr.DeviceIP)

		case NetworkErrorNetworkUnreachable:
			hint = append(hint, "Your computer has no route to the IMD's network.",
				"Troubleshooting:",
				"  • Check the cable between your computer and the IMD",
				"  • Check your network adapter settings")

		default:
			hint = append(hint, "Troubleshooting:",
				"  • Check your network connection",
				"  • Verify the IMD is powered on")
		}

		return strings.Join(hint, "\n")

	case ErrTypeHTTP:
		if devErr.StatusCode >= 500 {
			return strings.Join([]string{
				fmt.Sprintf("The IMD returned an error (HTTP %d).", devErr.StatusCode),
				"Troubleshooting:",
				"  • Retry after the IMD finishes any pending reboot",
				"  • Check whether a firmware upgrade is available",
			}, "\n")
		}
		return fmt.Sprintf("The IMD returned HTTP error %d. Check the api_path in the prompts file.", devErr.StatusCode)

	case ErrTypeParse:
		return strings.Join([]string{
			"Failed to parse the IMD's response.",
			"This may indicate a firmware incompatibility.",
		}, "\n")

	case ErrTypeValidation:
		return "The request values are invalid. Check the error message for details."

	default:
		return "An error occurred. Please check the error message for details."
	}
}

// GetShortErrorMessage returns a concise, user-friendly error message
func GetShortErrorMessage(err error) string {
	devErr, ok := asDeviceError(err)
	if !ok {
		return err.Error()
	}

	switch devErr.Type {
	case ErrTypeTimeout:
		return "IMD not responding (timeout)"
	case ErrTypeConnectionRefused:
		return "IMD refused connection"
	case ErrTypeDNS:
		return "Cannot resolve IMD hostname"
	case ErrTypeTLS:
		return "TLS handshake with IMD failed"
	case ErrTypeAuth:
		return "Authentication failed - check credentials"
	case ErrTypeDevice:
		return devErr.RetMsg
	case ErrTypeNetwork:
		switch devErr.NetworkSubtype {
		case NetworkErrorHostUnreachable:
			return "IMD unreachable - check network connection"
		case NetworkErrorNetworkUnreachable:
			return "Network unreachable - check cabling"
		default:
			return "Network error - check connection"
		}
	case ErrTypeHTTP:
		return fmt.Sprintf("IMD error (HTTP %d)", devErr.StatusCode)
	case ErrTypeParse:
		return "Failed to parse IMD response"
	default:
		return devErr.Message
	}
}
