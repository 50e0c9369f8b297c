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

import "math"

// SEM_VALUE_MAX is the maximum value of a POSIX semaphore, from
// <bits/semaphore.h>.
const SEM_VALUE_MAX = math.MaxInt32

// NAME_MAX is the maximum length of a path component, from
// include/uapi/linux/limits.h. sem_open(3) names are limited to NAME_MAX-4
// characters since glibc prefixes them with "sem.".
const NAME_MAX = 255

// SEM_NAME_MAX is the longest accepted sem_open(3) name, excluding the
// leading slash.
const SEM_NAME_MAX = NAME_MAX - 4
