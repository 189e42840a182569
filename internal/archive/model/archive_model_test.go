// Copyright 2023 the Pi Gazing authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"encoding/json"
	"testing"
)

func TestValueJSONRoundTrip(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   Value
		want string
	}{
		{"text", TextValue("ultraWide"), `"ultraWide"`},
		{"number", NumberValue(52.2), `52.2`},
		{"json", JSONValue(json.RawMessage(`{"fov":120}`)), `{"fov":120}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			b, err := json.Marshal(tc.in)
			if err != nil {
				t.Fatalf("Marshal: %v", err)
			}
			if string(b) != tc.want {
				t.Errorf("marshal = %s, want %s", b, tc.want)
			}

			var got Value
			if err := json.Unmarshal(b, &got); err != nil {
				t.Fatalf("Unmarshal: %v", err)
			}
			if !got.Equal(tc.in) {
				t.Errorf("round trip not equal: %+v vs %+v", got, tc.in)
			}
		})
	}
}

func TestValueUnmarshalTyping(t *testing.T) {
	t.Parallel()

	var v Value
	if err := json.Unmarshal([]byte(`"52.2"`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Text == nil || v.Number != nil {
		t.Errorf("quoted number should decode as text: %+v", v)
	}

	v = Value{}
	if err := json.Unmarshal([]byte(`52.2`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v.Number == nil || *v.Number != 52.2 {
		t.Errorf("bare number should decode as number: %+v", v)
	}

	v = Value{}
	if err := json.Unmarshal([]byte(`["a","b"]`), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(v.JSON) == 0 {
		t.Errorf("array should decode as raw JSON: %+v", v)
	}
}

func TestValueEqual(t *testing.T) {
	t.Parallel()

	if TextValue("52.2").Equal(NumberValue(52.2)) {
		t.Error("text and number with same rendering must not be equal")
	}
	if !NumberValue(1).Equal(NumberValue(1)) {
		t.Error("identical numbers must be equal")
	}
}

func TestObservatorySameLocation(t *testing.T) {
	t.Parallel()

	a := &Observatory{PublicID: "eddington0", Latitude: 52.2, Longitude: 0.12, Altitude: 15}
	b := &Observatory{PublicID: "eddington0", Latitude: 52.2, Longitude: 0.12, Altitude: 15}
	if !a.SameLocation(b) {
		t.Error("identical coordinates should match")
	}

	b.Longitude = 0.13
	if a.SameLocation(b) {
		t.Error("different coordinates should not match")
	}
}
