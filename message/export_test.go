// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package message

import "github.com/bureau-foundation/gatekeeper/lib/codec"

var cborMarshal = codec.Marshal
