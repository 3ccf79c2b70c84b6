package restful

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-yaml"

	"github.com/Hismer/gin-restful/negotiation"
)

// Content types the library can write. JSON is the default when the client
// expresses no usable preference.
const (
	ContentTypeJSON = "application/json"
	ContentTypeCBOR = "application/cbor"
	ContentTypeYAML = "application/yaml"

	contentTypeYAMLLegacy = "application/x-yaml"
)

var offers = []string{
	ContentTypeJSON,
	ContentTypeCBOR,
	ContentTypeYAML,
	contentTypeYAMLLegacy,
}

var cborEnc cbor.EncMode

func init() {
	opts := cbor.CanonicalEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	opts.TimeTag = cbor.EncTagRequired

	var err error
	cborEnc, err = opts.EncMode()
	if err != nil {
		panic(err)
	}
}

// SelectContentType returns the content type responses to this request
// should be written in, negotiated from the Accept header. JSON wins by
// default and on ties.
func SelectContentType(c *gin.Context) string {
	ct := ContentTypeJSON

	if accept := c.GetHeader("Accept"); accept != "" {
		if best := negotiation.Best(accept, offers...); best != "" {
			ct = best
		}
	}

	return ct
}

// Respond writes body with the given status in the negotiated content type.
// A nil body writes only the status, which is how the 204 verbs answer.
// Marshal failures panic, matching Gin's own render behavior, so the
// recovery middleware turns them into a 500.
func Respond(c *gin.Context, status int, body any) {
	if body == nil {
		c.Status(status)
		return
	}

	switch ct := SelectContentType(c); ct {
	case ContentTypeCBOR:
		data, err := cborEnc.Marshal(body)
		if err != nil {
			panic(fmt.Errorf("marshal cbor response: %w", err))
		}
		c.Data(status, ContentTypeCBOR, data)
	case ContentTypeYAML, contentTypeYAMLLegacy:
		data, err := yaml.Marshal(body)
		if err != nil {
			panic(fmt.Errorf("marshal yaml response: %w", err))
		}
		c.Data(status, ct, data)
	default:
		c.JSON(status, body)
	}
}

// RespondError writes the structured-error body `{"msg": ...}` with the
// given status in the negotiated content type.
func RespondError(c *gin.Context, status int, msg string) {
	Respond(c, status, &Error{Msg: msg, Status: status})
}
