// Copyright (C) 2025 warden-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package crypto

import (
	"encoding/json"

	ristretto "github.com/gtank/ristretto255"
)

// The protocol's channel frames are plain JSON, and a *ristretto255.Element
// has no natural JSON form, so every PAKE message that crosses the wire
// has a byte-oriented Wire twin used only by the channel layer.

// RegistrationRequestWire is the wire form of RegistrationRequest.
type RegistrationRequestWire struct {
	Alpha []byte `json:"alpha"`
}

func (r *RegistrationRequest) ToWire() RegistrationRequestWire {
	return RegistrationRequestWire{Alpha: r.Alpha.Encode(nil)}
}

func (w RegistrationRequestWire) FromWire() (*RegistrationRequest, error) {
	alpha := new(ristretto.Element)
	if err := alpha.Decode(w.Alpha); err != nil {
		return nil, err
	}
	return &RegistrationRequest{Alpha: alpha}, nil
}

// RegistrationResponseWire is the wire form of RegistrationResponse.
type RegistrationResponseWire struct {
	Beta            []byte `json:"beta"`
	ServerPublicKey []byte `json:"server_public_key"`
}

func (r *RegistrationResponse) ToWire() RegistrationResponseWire {
	return RegistrationResponseWire{
		Beta:            r.Beta.Encode(nil),
		ServerPublicKey: r.ServerPublicKey.Encode(nil),
	}
}

func (w RegistrationResponseWire) FromWire() (*RegistrationResponse, error) {
	beta := new(ristretto.Element)
	if err := beta.Decode(w.Beta); err != nil {
		return nil, err
	}
	Ps := new(ristretto.Element)
	if err := Ps.Decode(w.ServerPublicKey); err != nil {
		return nil, err
	}
	return &RegistrationResponse{Beta: beta, ServerPublicKey: Ps}, nil
}

// RegistrationRecordWire is the wire form of RegistrationRecord.
type RegistrationRecordWire struct {
	ClientPublicKey []byte         `json:"client_public_key"`
	Envelope        AuthCiphertext `json:"envelope"`
}

func (r *RegistrationRecord) ToWire() RegistrationRecordWire {
	return RegistrationRecordWire{
		ClientPublicKey: r.ClientPublicKey.Encode(nil),
		Envelope:        r.Envelope,
	}
}

func (w RegistrationRecordWire) FromWire() (*RegistrationRecord, error) {
	Pu := new(ristretto.Element)
	if err := Pu.Decode(w.ClientPublicKey); err != nil {
		return nil, err
	}
	return &RegistrationRecord{ClientPublicKey: Pu, Envelope: w.Envelope}, nil
}

// MarshalRegistrationBlob serializes a RegistrationRecord into the bytes
// stored as the account's opaque_server_registration_blob.
func MarshalRegistrationBlob(rec *RegistrationRecord) ([]byte, error) {
	return json.Marshal(rec.ToWire())
}

// UnmarshalRegistrationBlob parses a stored opaque_server_registration_blob.
func UnmarshalRegistrationBlob(data []byte) (clientPublicKey *ristretto.Element, envelope AuthCiphertext, err error) {
	var wire RegistrationRecordWire
	if err = json.Unmarshal(data, &wire); err != nil {
		return nil, AuthCiphertext{}, err
	}
	rec, err := wire.FromWire()
	if err != nil {
		return nil, AuthCiphertext{}, err
	}
	return rec.ClientPublicKey, rec.Envelope, nil
}

// AuthRequestWire is the wire form of AuthRequest.
type AuthRequestWire struct {
	Alpha []byte `json:"alpha"`
	Xu    []byte `json:"xu"`
}

func (r *AuthRequest) ToWire() AuthRequestWire {
	return AuthRequestWire{Alpha: r.Alpha.Encode(nil), Xu: r.Xu.Encode(nil)}
}

func (w AuthRequestWire) FromWire() (*AuthRequest, error) {
	alpha := new(ristretto.Element)
	if err := alpha.Decode(w.Alpha); err != nil {
		return nil, err
	}
	xu := new(ristretto.Element)
	if err := xu.Decode(w.Xu); err != nil {
		return nil, err
	}
	return &AuthRequest{Alpha: alpha, Xu: xu}, nil
}

// AuthResponseWire is the wire form of AuthResponse.
type AuthResponseWire struct {
	Beta          []byte         `json:"beta"`
	Xs            []byte         `json:"xs"`
	Envelope      AuthCiphertext `json:"envelope"`
	ServerConfirm []byte         `json:"server_confirm"`
}

func (r *AuthResponse) ToWire() AuthResponseWire {
	return AuthResponseWire{
		Beta:          r.Beta.Encode(nil),
		Xs:            r.Xs.Encode(nil),
		Envelope:      r.Envelope,
		ServerConfirm: r.ServerConfirm,
	}
}

func (w AuthResponseWire) FromWire() (*AuthResponse, error) {
	beta := new(ristretto.Element)
	if err := beta.Decode(w.Beta); err != nil {
		return nil, err
	}
	xs := new(ristretto.Element)
	if err := xs.Decode(w.Xs); err != nil {
		return nil, err
	}
	return &AuthResponse{Beta: beta, Xs: xs, Envelope: w.Envelope, ServerConfirm: w.ServerConfirm}, nil
}
