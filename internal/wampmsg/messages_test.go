package wampmsg

import (
	"reflect"
	"testing"
)

func TestFromArrayRoundTrip(t *testing.T) {
	cases := []Message{
		&Hello{Realm: "realm1", Details: map[string]interface{}{"roles": map[string]interface{}{}}},
		&Welcome{Session: 12345, Details: map[string]interface{}{"authid": "anon"}},
		&Abort{Details: map[string]interface{}{}, Reason: "wamp.error.not_authorized"},
		&Call{RequestID: 1, Options: map[string]interface{}{}, Procedure: "io.echo", Args: []interface{}{"hi"}, Kwargs: map[string]interface{}{"k": "v"}},
		&Result{RequestID: 1, Details: map[string]interface{}{}, Args: []interface{}{"hi"}},
		&Error{RequestType: TypeCall, RequestID: 1, Details: map[string]interface{}{}, URI: "wamp.error.no_such_procedure", Args: []interface{}{}},
		&Publish{RequestID: 2, Options: map[string]interface{}{"acknowledge": true}, Topic: "io.t", Args: []interface{}{"h"}},
		&Event{SubscriptionID: 9, PublicationID: 10, Details: map[string]interface{}{}, Args: []interface{}{"h"}},
		&Register{RequestID: 3, Options: map[string]interface{}{}, Procedure: "io.echo"},
		&Invocation{RequestID: 4, RegistrationID: 3, Details: map[string]interface{}{}, Args: []interface{}{"hi"}},
		&Yield{RequestID: 4, Options: map[string]interface{}{}, Args: []interface{}{"hi"}},
		&Goodbye{Details: map[string]interface{}{}, Reason: "wamp.close.goodbye_and_out"},
	}

	for _, want := range cases {
		t.Run(want.Type().String(), func(t *testing.T) {
			got, err := FromArray(want.ToArray())
			if err != nil {
				t.Fatalf("FromArray: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("round trip mismatch:\n got=%#v\nwant=%#v", got, want)
			}
		})
	}
}

func TestFromArrayRejectsShortArrays(t *testing.T) {
	if _, err := FromArray([]interface{}{int(TypeHello), "realm1"}); err == nil {
		t.Fatal("expected error for short HELLO array")
	}
}

func TestFromArrayRejectsUnknownType(t *testing.T) {
	if _, err := FromArray([]interface{}{int(999)}); err == nil {
		t.Fatal("expected error for unknown message type")
	}
}

func TestProgress(t *testing.T) {
	if Progress(nil) {
		t.Fatal("nil details should not be progress")
	}
	if !Progress(map[string]interface{}{"progress": true}) {
		t.Fatal("expected progress=true to be detected")
	}
}
