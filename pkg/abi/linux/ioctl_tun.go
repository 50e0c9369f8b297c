// Copyright 2018 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package linux

// ioctl(2) request numbers from linux/if_tun.h
var (
	TUNSETIFF       = IOC(_IOC_WRITE, 'T', 202, 4)
	TUNSETOFFLOAD   = IOC(_IOC_WRITE, 'T', 208, 4)
	TUNGETIFF       = IOC(_IOC_READ, 'T', 210, 4)
	TUNSETVNETHDRSZ = IOC(_IOC_WRITE, 'T', 216, 4)
)

// Flags from net/if_tun.h
const (
	IFF_TUN        = 0x0001
	IFF_TAP        = 0x0002
	IFF_NAPI       = 0x0010
	IFF_NAPI_FRAGS = 0x0020
	// Used in TUNSETIFF to bring up tun/tap without carrier.
	IFF_NO_CARRIER   = 0x0040
	IFF_NO_PI        = 0x1000
	IFF_VNET_HDR     = 0x4000
	IFF_TUN_EXCL     = 0x8000
	IFF_MULTI_QUEUE  = 0x0100
	IFF_ATTACH_QUEUE = 0x0200
	IFF_DETACH_QUEUE = 0x0400
	IFF_PERSIST      = 0x0800
	IFF_NOFILTER     = 0x1000

	// According to linux/if_tun.h "This flag has no real effect"
	IFF_ONE_QUEUE = 0x2000
)

// Features for GSO (TUNSETOFFLOAD).
const (
	TUN_F_CSUM    = 0x01
	TUN_F_TSO4    = 0x02
	TUN_F_TSO6    = 0x04
	TUN_F_TSO_ECN = 0x08
	TUN_F_UFO     = 0x10
	TUN_F_USO4    = 0x20
	TUN_F_USO6    = 0x40
)
