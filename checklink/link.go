package checklink

import (
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/bitcoindance/stablewallet/keychain"
	"github.com/bitcoindance/stablewallet/stwire"
)

// ErrInvalidLink is returned when a share URL cannot be parsed back into a
// link, either because the fragment is not valid entropy or because the
// path carries a malformed transaction id.
var ErrInvalidLink = errors.New("invalid share link")

// Link is the shareable capability for a check or sweep target. Whoever
// holds the entropy holds the funds; the link is the only artifact that
// ever leaves the issuing wallet.
type Link struct {
	// Entropy is the root secret of the ephemeral key. It rides in the
	// URL fragment, which user agents never transmit to a server.
	Entropy []byte

	// TxID is set for the check variant only: the funding transaction id
	// the node keys redemption on. It rides in the URL path.
	TxID *stwire.TxID
}

// String renders the link against the passed base URL, typically the web
// wallet's origin.
func (l *Link) String(baseURL string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("%w: base url: %v", ErrInvalidLink, err)
	}

	u.Path = "/"
	if l.TxID != nil {
		u.Path = "/" + l.TxID.String()
	}
	u.Fragment = base64.RawURLEncoding.EncodeToString(l.Entropy)

	return u.String(), nil
}

// ParseLink recovers a link from a share URL. The fragment must decode to
// entropy of a supported length; a path segment, if present, must be a full
// transaction id in hex.
func ParseLink(raw string) (*Link, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}

	entropy, err := base64.RawURLEncoding.DecodeString(u.Fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: fragment: %v", ErrInvalidLink, err)
	}

	switch len(entropy) {
	case keychain.EntropyShortSize, keychain.EntropyLongSize:
	default:
		return nil, fmt.Errorf("%w: fragment decodes to %d bytes",
			ErrInvalidLink, len(entropy))
	}

	link := &Link{Entropy: entropy}

	if segment := strings.Trim(u.Path, "/"); segment != "" {
		txid, err := stwire.NewTxIDFromString(segment)
		if err != nil {
			return nil, fmt.Errorf("%w: path: %v", ErrInvalidLink,
				err)
		}
		link.TxID = &txid
	}

	return link, nil
}
