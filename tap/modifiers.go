package tap

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/biter777/countries"
	"github.com/tidwall/gjson"
	"github.com/ttacon/libphonenumber"
	"go.uber.org/zap"
)

// now is replaced in tests
var modifierClock = time.Now

func currencyModifier(json, arg string) string {
	res := gjson.Parse(json)
	if !res.Exists() {
		return ""
	}
	if arg == "CLOVER_2DP" {
		// clover stores amounts in the smallest currency unit (e.g. cents)
		i := res.Int()
		sign := ""
		if i < 0 {
			sign = "-"
			i = -i
		}
		return fmt.Sprintf("%s%d.%02d", sign, i/100, i%100)
	}
	return json
}

// phoneModifier formats a number as E.164. arg is the calling code used
// when the number has no international prefix, e.g. @phone:1
func phoneModifier(json, arg string) string {
	number := strings.TrimSpace(gjson.Parse(json).String())
	if number == "" {
		return ""
	}
	region := "US"
	if arg != "" {
		i, err := strconv.Atoi(strings.TrimPrefix(arg, "+"))
		if err != nil {
			Logger().Warn("invalid phone calling code", zap.String("arg", arg))
			return json
		}
		region = libphonenumber.GetRegionCodeForCountryCode(i)
	}
	num, err := libphonenumber.Parse(number, region)
	if err != nil {
		Logger().Warn("failed to parse phone number, keeping it as is",
			zap.String("number", number),
			zap.String("arg", arg),
			zap.Error(err))
		return json
	}
	return strconv.Quote(libphonenumber.Format(num, libphonenumber.E164))
}

func countryNameModifier(json, arg string) string {
	s := gjson.Parse(json).String()
	c := countries.ByName(s) // will match on Alpha-2 / Alpha-3 / Name
	if countries.Unknown == c {
		return ""
	}
	return strconv.Quote(c.String())
}

// timestampModifier turns a clover epoch milliseconds value into an RFC 3339 string.
// @timestamp:SECONDS reads the value as epoch seconds instead.
func timestampModifier(json, arg string) string {
	res := gjson.Parse(json)
	if !res.Exists() || res.Type != gjson.Number {
		return ""
	}
	var t time.Time
	if arg == "SECONDS" {
		t = time.Unix(res.Int(), 0)
	} else {
		t = time.UnixMilli(res.Int())
	}
	return strconv.Quote(t.UTC().Format(time.RFC3339))
}

func nowModifier(json, arg string) string {
	return strconv.Quote(modifierClock().UTC().Format(time.RFC3339))
}

func containsModifier(json, arg string) string {
	res := gjson.Parse(json)
	if res.IsArray() {
		for _, v := range res.Array() {
			if strings.Contains(v.String(), arg) {
				return "true"
			}
		}
		return "false"
	}
	return strconv.FormatBool(strings.Contains(res.String(), arg))
}

func gteModifier(json, arg string) string {
	res := gjson.Parse(json)
	if !res.Exists() || arg == "" {
		return ""
	}
	f, err := strconv.ParseFloat(arg, 64)
	if err != nil {
		return ""
	}
	return strconv.FormatBool(res.Float() >= f)
}
