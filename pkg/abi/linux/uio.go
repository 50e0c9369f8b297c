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

// UIO_MAXIOV is the maximum number of struct iovecs in a struct iovec array,
// from include/uapi/linux/uio.h.
const UIO_MAXIOV = 1024

// IOV_MAX is the POSIX name for UIO_MAXIOV.
const IOV_MAX = UIO_MAXIOV

// SizeOfIOVec is the size of a struct iovec in bytes.
const SizeOfIOVec = 16
