// Copyright 2024 The OSS Rebuild Authors
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

package packager

import "log"

// LogNotifier is the default Notifier: it writes the package summary to
// the process log rather than emailing it anywhere.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(subject, body string) error {
	log.Printf("%s\n%s", subject, body)
	return nil
}
